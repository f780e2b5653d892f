package game

import (
	"context"

	"github.com/hansol-club/stockfest/internal/models"

	"go.uber.org/zap"
)

// Settle pushes the precomputed outcomes for the round after endedRoundNumber
// into the live stock prices: each stock's PrevPrice becomes its current live
// price and Price becomes the recorded action price.
//
// The +1 lookup reproduces the deployed game: ending round N applies the
// actions recorded for round N+1. Round 1's actions are never applied and the
// final round's actions have no round to land in. Confirm the intended
// semantics before changing it (see DESIGN.md).
func (s *Service) Settle(ctx context.Context, endedRoundNumber int) error {
	actions, err := s.store.ListRoundActionsByRoundNumber(ctx, endedRoundNumber+1)
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		s.log.Info("no round actions to settle", zap.Int("endedRound", endedRoundNumber))
		return nil
	}

	return s.store.InTx(ctx, func(tx Store) error {
		for _, action := range actions {
			if err := tx.UpdateStockPrice(ctx, action.StockID, action.Price, action.Stock.Price); err != nil {
				return err
			}
		}
		s.log.Info("round settled",
			zap.Int("endedRound", endedRoundNumber),
			zap.Int("stocks", len(actions)))
		return nil
	})
}

// FinishRound ends the open round and settles it, the between-rounds batch
// step operators run from gamectl.
func (s *Service) FinishRound(ctx context.Context) (*models.RoundInfo, error) {
	round, err := s.EndRound(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Settle(ctx, round.RoundNumber); err != nil {
		return nil, err
	}
	return round, nil
}
