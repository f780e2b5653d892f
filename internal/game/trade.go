package game

import (
	"context"

	"github.com/hansol-club/stockfest/internal/models"

	"go.uber.org/zap"
)

// OrderLine is one stock line item within an order request.
type OrderLine struct {
	StockID  string `json:"stockId"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

// ClientHolding mirrors the holdings snapshot older clients still send.
type ClientHolding struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
}

// OrderRequest is the /api/order payload. UserBalance, UserStocks and
// TotalAmount are accepted for wire compatibility with existing clients but
// are never trusted: balance, holdings and totals are re-derived from the
// store inside the transaction.
type OrderRequest struct {
	Type        string          `json:"type"`
	UserID      string          `json:"userId"`
	Orders      []OrderLine     `json:"orders"`
	TotalAmount int64           `json:"totalAmount"`
	UserBalance int64           `json:"userBalance"`
	UserStocks  []ClientHolding `json:"userStocks"`
}

// OrderResult carries the refreshed player view and stock list after a
// successful order.
type OrderResult struct {
	Message string
	User    *models.UserDetail
	Stocks  []models.Stock
}

// PlaceOrder validates and applies a buy or sell request. All writes for the
// request run in one transaction: if any line item fails, nothing is applied.
func (s *Service) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	var message string
	switch req.Type {
	case "buy":
		message = "buy order completed"
	case "sell":
		message = "sell order completed"
	default:
		return nil, ErrInvalidOrderType
	}

	var result OrderResult
	err := s.store.InTx(ctx, func(tx Store) error {
		user, err := tx.GetUserByID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		if req.Type == "buy" {
			err = s.applyBuy(ctx, tx, user, req.Orders)
		} else {
			err = s.applySell(ctx, tx, user, req.Orders)
		}
		if err != nil {
			return err
		}

		detail, err := tx.GetUserDetail(ctx, req.UserID)
		if err != nil {
			return err
		}
		stocks, err := tx.ListStocks(ctx)
		if err != nil {
			return err
		}
		result = OrderResult{Message: message, User: detail, Stocks: stocks}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order placed",
		zap.String("type", req.Type),
		zap.String("userId", req.UserID),
		zap.Int("lines", len(req.Orders)))
	return &result, nil
}

// applyBuy checks funds against the server-side balance, then applies each
// line: inventory check, Order row, holding increment, balance write, stock
// inventory decrement.
func (s *Service) applyBuy(ctx context.Context, tx Store, user *models.User, lines []OrderLine) error {
	var total int64
	for _, line := range lines {
		total += line.Price * line.Quantity
	}
	if total > user.Balance {
		return ErrInsufficientFunds
	}

	for _, line := range lines {
		stock, err := tx.GetStockByID(ctx, line.StockID)
		if err != nil {
			return err
		}
		if stock == nil {
			return ErrStockNotFound
		}
		if stock.Quantity < line.Quantity {
			return ErrInsufficientInventory
		}

		user.Balance -= line.Price * line.Quantity
		if _, err := tx.CreateOrder(ctx, user.ID, line.StockID, line.Quantity, line.Price, models.SideBuy); err != nil {
			return err
		}
		if err := tx.AdjustUserStock(ctx, user.ID, line.StockID, line.Quantity); err != nil {
			return err
		}
		if err := tx.UpdateUserBalance(ctx, user.ID, user.Balance); err != nil {
			return err
		}
		if err := tx.AdjustStockQuantity(ctx, line.StockID, -line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// applySell pre-validates every line against the server-side holdings before
// applying any, so a single short line rejects the whole request.
func (s *Service) applySell(ctx context.Context, tx Store, user *models.User, lines []OrderLine) error {
	for _, line := range lines {
		held, err := tx.GetUserStock(ctx, user.ID, line.StockID)
		if err != nil {
			return err
		}
		if held == nil || held.Quantity < line.Quantity {
			return ErrInsufficientHoldings
		}
	}

	for _, line := range lines {
		user.Balance += line.Price * line.Quantity
		if _, err := tx.CreateOrder(ctx, user.ID, line.StockID, line.Quantity, line.Price, models.SideSell); err != nil {
			return err
		}
		if err := tx.AdjustUserStock(ctx, user.ID, line.StockID, -line.Quantity); err != nil {
			return err
		}
		if err := tx.UpdateUserBalance(ctx, user.ID, user.Balance); err != nil {
			return err
		}
		if err := tx.AdjustStockQuantity(ctx, line.StockID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}
