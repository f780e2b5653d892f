package game

import (
	"context"

	"github.com/hansol-club/stockfest/internal/models"
)

// Store is the persistence gateway the game core runs against. Point lookups
// return (nil, nil) when no row matches. Quantity adjustments are conditional:
// they fail instead of driving a quantity negative. InTx runs fn against a
// transaction-bound store and rolls every write back if fn returns an error.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error

	CreateUser(ctx context.Context, name, password string, balance int64) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUserBalance(ctx context.Context, id string, balance int64) error
	GetUserDetail(ctx context.Context, id string) (*models.UserDetail, error)

	CreateStock(ctx context.Context, name string, price, quantity int64) (*models.Stock, error)
	GetStockByID(ctx context.Context, id string) (*models.Stock, error)
	ListStocks(ctx context.Context) ([]models.Stock, error)
	UpdateStockPrice(ctx context.Context, id string, price, prevPrice int64) error
	AdjustStockQuantity(ctx context.Context, id string, delta int64) error

	CreateOrder(ctx context.Context, userID, stockID string, quantity, price int64, side models.Side) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]models.Order, error)

	GetUserStock(ctx context.Context, userID, stockID string) (*models.UserStock, error)
	AdjustUserStock(ctx context.Context, userID, stockID string, delta int64) error

	CreateRound(ctx context.Context, roundNumber int) (*models.RoundInfo, error)
	ListRounds(ctx context.Context) ([]models.RoundInfo, error)
	StartNextRound(ctx context.Context) (*models.RoundInfo, error)
	EndCurrentRound(ctx context.Context) (*models.RoundInfo, error)
	GetCurrentRound(ctx context.Context) (*models.RoundInfo, error)

	CreateRoundAction(ctx context.Context, action *models.RoundAction) (*models.RoundAction, error)
	ListRoundActions(ctx context.Context) ([]models.RoundAction, error)
	ListRoundActionsByRoundNumber(ctx context.Context, roundNumber int) ([]models.RoundActionWithStock, error)
	AssignRoundActions(ctx context.Context, ids []string, userID string) error
}
