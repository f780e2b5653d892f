// Package testutil provides an in-memory game.Store so service and handler
// tests run without a live database.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hansol-club/stockfest/internal/game"
	"github.com/hansol-club/stockfest/internal/models"

	"github.com/google/uuid"
)

// MemStore implements game.Store over plain maps. InTx snapshots all state
// and restores it when fn fails, matching the rollback semantics of the real
// store. It is meant for sequential use inside tests.
type MemStore struct {
	users      map[string]models.User
	stocks     map[string]models.Stock
	orders     []models.Order
	userStocks map[string]models.UserStock // keyed userID|stockID
	rounds     []models.RoundInfo
	actions    []models.RoundAction

	inTx bool
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:      make(map[string]models.User),
		stocks:     make(map[string]models.Stock),
		userStocks: make(map[string]models.UserStock),
	}
}

func holdingKey(userID, stockID string) string {
	return userID + "|" + stockID
}

func (m *MemStore) snapshot() *MemStore {
	s := NewMemStore()
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.stocks {
		s.stocks[k] = v
	}
	for k, v := range m.userStocks {
		s.userStocks[k] = v
	}
	s.orders = append([]models.Order(nil), m.orders...)
	s.rounds = append([]models.RoundInfo(nil), m.rounds...)
	s.actions = append([]models.RoundAction(nil), m.actions...)
	return s
}

func (m *MemStore) restore(s *MemStore) {
	m.users = s.users
	m.stocks = s.stocks
	m.userStocks = s.userStocks
	m.orders = s.orders
	m.rounds = s.rounds
	m.actions = s.actions
}

// InTx runs fn against the store and rolls every write back if fn errors.
func (m *MemStore) InTx(ctx context.Context, fn func(game.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	backup := m.snapshot()
	m.inTx = true
	err := fn(m)
	m.inTx = false
	if err != nil {
		m.restore(backup)
		return err
	}
	return nil
}

func (m *MemStore) CreateUser(ctx context.Context, name, password string, balance int64) (*models.User, error) {
	for _, u := range m.users {
		if u.Name == name {
			return nil, fmt.Errorf("user name %q already exists", name)
		}
	}
	user := models.User{
		ID:        uuid.NewString(),
		Name:      name,
		Password:  password,
		Balance:   balance,
		CreatedAt: time.Now(),
	}
	m.users[user.ID] = user
	return &user, nil
}

func (m *MemStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		return &user, nil
	}
	return nil, nil
}

func (m *MemStore) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	for _, user := range m.users {
		if user.Name == name {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListUsers(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (m *MemStore) UpdateUserBalance(ctx context.Context, id string, balance int64) error {
	user, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	user.Balance = balance
	m.users[id] = user
	return nil
}

func (m *MemStore) GetUserDetail(ctx context.Context, id string) (*models.UserDetail, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	detail := &models.UserDetail{User: user}

	for _, us := range m.userStocks {
		if us.UserID != id {
			continue
		}
		detail.Holdings = append(detail.Holdings, models.Holding{
			UserStock: us,
			Stock:     m.stocks[us.StockID],
		})
	}
	sort.Slice(detail.Holdings, func(i, j int) bool {
		return detail.Holdings[i].Stock.Name < detail.Holdings[j].Stock.Name
	})

	for _, action := range m.actions {
		if action.UserID == nil || *action.UserID != id {
			continue
		}
		detail.RoundActions = append(detail.RoundActions, models.RoundActionWithStock{
			RoundAction: action,
			Stock:       m.stocks[action.StockID],
			Round:       m.roundByID(action.RoundInfoID),
		})
	}
	sort.Slice(detail.RoundActions, func(i, j int) bool {
		return detail.RoundActions[i].Round.RoundNumber < detail.RoundActions[j].Round.RoundNumber
	})
	return detail, nil
}

func (m *MemStore) CreateStock(ctx context.Context, name string, price, quantity int64) (*models.Stock, error) {
	stock := models.Stock{
		ID:        uuid.NewString(),
		Name:      name,
		Price:     price,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	}
	m.stocks[stock.ID] = stock
	return &stock, nil
}

func (m *MemStore) GetStockByID(ctx context.Context, id string) (*models.Stock, error) {
	if stock, ok := m.stocks[id]; ok {
		return &stock, nil
	}
	return nil, nil
}

func (m *MemStore) ListStocks(ctx context.Context) ([]models.Stock, error) {
	stocks := make([]models.Stock, 0, len(m.stocks))
	for _, stock := range m.stocks {
		stocks = append(stocks, stock)
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].Name < stocks[j].Name })
	return stocks, nil
}

func (m *MemStore) UpdateStockPrice(ctx context.Context, id string, price, prevPrice int64) error {
	stock, ok := m.stocks[id]
	if !ok {
		return fmt.Errorf("stock %s not found", id)
	}
	stock.Price = price
	stock.PrevPrice = prevPrice
	m.stocks[id] = stock
	return nil
}

func (m *MemStore) AdjustStockQuantity(ctx context.Context, id string, delta int64) error {
	stock, ok := m.stocks[id]
	if !ok {
		return fmt.Errorf("stock %s not found", id)
	}
	if stock.Quantity+delta < 0 {
		return fmt.Errorf("stock %s: quantity adjustment by %d rejected", id, delta)
	}
	stock.Quantity += delta
	m.stocks[id] = stock
	return nil
}

func (m *MemStore) CreateOrder(ctx context.Context, userID, stockID string, quantity, price int64, side models.Side) (*models.Order, error) {
	order := models.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		StockID:   stockID,
		Quantity:  quantity,
		Price:     price,
		Side:      side,
		CreatedAt: time.Now(),
	}
	m.orders = append(m.orders, order)
	return &order, nil
}

func (m *MemStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	return append([]models.Order(nil), m.orders...), nil
}

func (m *MemStore) ListUserOrders(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	for _, order := range m.orders {
		if order.UserID == userID {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (m *MemStore) GetUserStock(ctx context.Context, userID, stockID string) (*models.UserStock, error) {
	if us, ok := m.userStocks[holdingKey(userID, stockID)]; ok {
		return &us, nil
	}
	return nil, nil
}

func (m *MemStore) AdjustUserStock(ctx context.Context, userID, stockID string, delta int64) error {
	key := holdingKey(userID, stockID)
	us, ok := m.userStocks[key]
	if !ok {
		us = models.UserStock{ID: uuid.NewString(), UserID: userID, StockID: stockID}
	}
	if us.Quantity+delta < 0 {
		return fmt.Errorf("user %s stock %s: holding adjustment by %d rejected", userID, stockID, delta)
	}
	us.Quantity += delta
	m.userStocks[key] = us
	return nil
}

func (m *MemStore) CreateRound(ctx context.Context, roundNumber int) (*models.RoundInfo, error) {
	round := models.RoundInfo{ID: uuid.NewString(), RoundNumber: roundNumber}
	m.rounds = append(m.rounds, round)
	sort.Slice(m.rounds, func(i, j int) bool { return m.rounds[i].RoundNumber < m.rounds[j].RoundNumber })
	return &round, nil
}

func (m *MemStore) ListRounds(ctx context.Context) ([]models.RoundInfo, error) {
	return append([]models.RoundInfo(nil), m.rounds...), nil
}

func (m *MemStore) StartNextRound(ctx context.Context) (*models.RoundInfo, error) {
	for i := range m.rounds {
		if m.rounds[i].StartedAt == nil {
			now := time.Now()
			m.rounds[i].StartedAt = &now
			round := m.rounds[i]
			return &round, nil
		}
	}
	return nil, nil
}

func (m *MemStore) EndCurrentRound(ctx context.Context) (*models.RoundInfo, error) {
	for i := range m.rounds {
		if m.rounds[i].StartedAt != nil && m.rounds[i].EndedAt == nil {
			now := time.Now()
			m.rounds[i].EndedAt = &now
			round := m.rounds[i]
			return &round, nil
		}
	}
	return nil, nil
}

func (m *MemStore) GetCurrentRound(ctx context.Context) (*models.RoundInfo, error) {
	for _, round := range m.rounds {
		if round.StartedAt != nil && round.EndedAt == nil {
			r := round
			return &r, nil
		}
	}
	return nil, nil
}

func (m *MemStore) roundByID(id string) models.RoundInfo {
	for _, round := range m.rounds {
		if round.ID == id {
			return round
		}
	}
	return models.RoundInfo{}
}

func (m *MemStore) CreateRoundAction(ctx context.Context, action *models.RoundAction) (*models.RoundAction, error) {
	created := *action
	created.ID = uuid.NewString()
	m.actions = append(m.actions, created)
	return &created, nil
}

func (m *MemStore) ListRoundActions(ctx context.Context) ([]models.RoundAction, error) {
	return append([]models.RoundAction(nil), m.actions...), nil
}

func (m *MemStore) ListRoundActionsByRoundNumber(ctx context.Context, roundNumber int) ([]models.RoundActionWithStock, error) {
	var roundID string
	var round models.RoundInfo
	for _, r := range m.rounds {
		if r.RoundNumber == roundNumber {
			roundID = r.ID
			round = r
			break
		}
	}

	var actions []models.RoundActionWithStock
	for _, action := range m.actions {
		if action.RoundInfoID != roundID {
			continue
		}
		actions = append(actions, models.RoundActionWithStock{
			RoundAction: action,
			Stock:       m.stocks[action.StockID],
			Round:       round,
		})
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].Stock.Name < actions[j].Stock.Name })
	return actions, nil
}

func (m *MemStore) AssignRoundActions(ctx context.Context, ids []string, userID string) error {
	assigned := make(map[string]bool, len(ids))
	for _, id := range ids {
		assigned[id] = true
	}
	for i := range m.actions {
		if assigned[m.actions[i].ID] {
			uid := userID
			m.actions[i].UserID = &uid
		}
	}
	return nil
}

var _ game.Store = (*MemStore)(nil)
