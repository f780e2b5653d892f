package game

import (
	"context"

	"github.com/hansol-club/stockfest/internal/models"

	"go.uber.org/zap"
)

// Service drives the round lifecycle, settlement, and order handling against
// a Store. It keeps no entity state of its own; every operation re-reads
// current values from the store.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService creates a game service.
func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// StartRound opens the lowest-numbered round that has not started yet.
// Returns ErrNoEligibleRound when every round has already been started.
func (s *Service) StartRound(ctx context.Context) (*models.RoundInfo, error) {
	round, err := s.store.StartNextRound(ctx)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, ErrNoEligibleRound
	}
	s.log.Info("round started", zap.Int("round", round.RoundNumber))
	return round, nil
}

// EndRound closes the currently open round. Returns ErrNoEligibleRound when
// no round is open.
func (s *Service) EndRound(ctx context.Context) (*models.RoundInfo, error) {
	round, err := s.store.EndCurrentRound(ctx)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, ErrNoEligibleRound
	}
	s.log.Info("round ended", zap.Int("round", round.RoundNumber))
	return round, nil
}

// CurrentRound returns the open round, or nil when none is open.
func (s *Service) CurrentRound(ctx context.Context) (*models.RoundInfo, error) {
	return s.store.GetCurrentRound(ctx)
}
