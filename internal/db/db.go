package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hansol-club/stockfest/internal/game"
	"github.com/hansol-club/stockfest/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every query
// method works inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a PostgreSQL connection pool and implements game.Store.
type DB struct {
	Pool *pgxpool.Pool
	q    querier
	tx   pgx.Tx
}

// NewDB initializes a new database connection pool.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{Pool: pool, q: pool}, nil
}

// Close closes the database connection pool.
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// InTx runs fn against a transaction-bound store. A nested call reuses the
// already-open transaction.
func (db *DB) InTx(ctx context.Context, fn func(game.Store) error) error {
	if db.tx != nil {
		return fn(db)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&DB{Pool: db.Pool, q: tx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateUser inserts a new user.
func (db *DB) CreateUser(ctx context.Context, name, password string, balance int64) (*models.User, error) {
	user := &models.User{}
	err := db.q.QueryRow(ctx,
		"INSERT INTO users (id, name, password, balance) VALUES ($1, $2, $3, $4) RETURNING id, name, password, balance, created_at",
		uuid.NewString(), name, password, balance).
		Scan(&user.ID, &user.Name, &user.Password, &user.Balance, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by id, or nil when no user matches.
func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return db.getUser(ctx, "SELECT id, name, password, balance, created_at FROM users WHERE id = $1", id)
}

// GetUserByName retrieves a user by name, or nil when no user matches.
func (db *DB) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	return db.getUser(ctx, "SELECT id, name, password, balance, created_at FROM users WHERE name = $1", name)
}

func (db *DB) getUser(ctx context.Context, sql string, arg any) (*models.User, error) {
	user := &models.User{}
	err := db.q.QueryRow(ctx, sql, arg).
		Scan(&user.ID, &user.Name, &user.Password, &user.Balance, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListUsers retrieves all users ordered by name.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.q.Query(ctx, "SELECT id, name, password, balance, created_at FROM users ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Password, &user.Balance, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUserBalance sets a user's balance.
func (db *DB) UpdateUserBalance(ctx context.Context, id string, balance int64) error {
	_, err := db.q.Exec(ctx, "UPDATE users SET balance = $2 WHERE id = $1", id, balance)
	if err != nil {
		return fmt.Errorf("failed to update user balance: %w", err)
	}
	return nil
}

// GetUserDetail retrieves a user with holdings and assigned round actions,
// the latter ordered by round number.
func (db *DB) GetUserDetail(ctx context.Context, id string) (*models.UserDetail, error) {
	user, err := db.GetUserByID(ctx, id)
	if err != nil || user == nil {
		return nil, err
	}
	detail := &models.UserDetail{User: *user}

	rows, err := db.q.Query(ctx, `
		SELECT us.id, us.user_id, us.stock_id, us.quantity,
		       s.id, s.name, s.price, s.prev_price, s.quantity, s.created_at
		FROM user_stocks us
		JOIN stocks s ON s.id = us.stock_id
		WHERE us.user_id = $1
		ORDER BY s.name ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user holdings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(
			&h.ID, &h.UserID, &h.StockID, &h.UserStock.Quantity,
			&h.Stock.ID, &h.Stock.Name, &h.Stock.Price, &h.Stock.PrevPrice, &h.Stock.Quantity, &h.Stock.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		detail.Holdings = append(detail.Holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	actionRows, err := db.q.Query(ctx, `
		SELECT ra.id, ra.stock_id, ra.round_info_id, ra.price, ra.diff, ra.user_id,
		       s.id, s.name, s.price, s.prev_price, s.quantity, s.created_at,
		       ri.id, ri.round_number, ri.started_at, ri.ended_at
		FROM round_actions ra
		JOIN stocks s ON s.id = ra.stock_id
		JOIN round_infos ri ON ri.id = ra.round_info_id
		WHERE ra.user_id = $1
		ORDER BY ri.round_number ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user round actions: %w", err)
	}
	defer actionRows.Close()
	for actionRows.Next() {
		var a models.RoundActionWithStock
		if err := actionRows.Scan(
			&a.ID, &a.StockID, &a.RoundInfoID, &a.RoundAction.Price, &a.Diff, &a.UserID,
			&a.Stock.ID, &a.Stock.Name, &a.Stock.Price, &a.Stock.PrevPrice, &a.Stock.Quantity, &a.Stock.CreatedAt,
			&a.Round.ID, &a.Round.RoundNumber, &a.Round.StartedAt, &a.Round.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan round action: %w", err)
		}
		detail.RoundActions = append(detail.RoundActions, a)
	}
	return detail, actionRows.Err()
}

// CreateStock inserts a new stock.
func (db *DB) CreateStock(ctx context.Context, name string, price, quantity int64) (*models.Stock, error) {
	stock := &models.Stock{}
	err := db.q.QueryRow(ctx,
		"INSERT INTO stocks (id, name, price, prev_price, quantity) VALUES ($1, $2, $3, 0, $4) RETURNING id, name, price, prev_price, quantity, created_at",
		uuid.NewString(), name, price, quantity).
		Scan(&stock.ID, &stock.Name, &stock.Price, &stock.PrevPrice, &stock.Quantity, &stock.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create stock: %w", err)
	}
	return stock, nil
}

// GetStockByID retrieves a stock by id, or nil when no stock matches.
func (db *DB) GetStockByID(ctx context.Context, id string) (*models.Stock, error) {
	stock := &models.Stock{}
	err := db.q.QueryRow(ctx,
		"SELECT id, name, price, prev_price, quantity, created_at FROM stocks WHERE id = $1", id).
		Scan(&stock.ID, &stock.Name, &stock.Price, &stock.PrevPrice, &stock.Quantity, &stock.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return stock, nil
}

// ListStocks retrieves all stocks ordered by name.
func (db *DB) ListStocks(ctx context.Context) ([]models.Stock, error) {
	rows, err := db.q.Query(ctx,
		"SELECT id, name, price, prev_price, quantity, created_at FROM stocks ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	defer rows.Close()

	var stocks []models.Stock
	for rows.Next() {
		var stock models.Stock
		if err := rows.Scan(&stock.ID, &stock.Name, &stock.Price, &stock.PrevPrice, &stock.Quantity, &stock.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, stock)
	}
	return stocks, rows.Err()
}

// UpdateStockPrice sets a stock's live price and display prev price.
func (db *DB) UpdateStockPrice(ctx context.Context, id string, price, prevPrice int64) error {
	_, err := db.q.Exec(ctx, "UPDATE stocks SET price = $2, prev_price = $3 WHERE id = $1", id, price, prevPrice)
	if err != nil {
		return fmt.Errorf("failed to update stock price: %w", err)
	}
	return nil
}

// AdjustStockQuantity changes market inventory by delta in one conditional
// statement; the update is rejected instead of driving the quantity negative.
func (db *DB) AdjustStockQuantity(ctx context.Context, id string, delta int64) error {
	tag, err := db.q.Exec(ctx,
		"UPDATE stocks SET quantity = quantity + $2 WHERE id = $1 AND quantity + $2 >= 0", id, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust stock quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock %s: quantity adjustment by %d rejected", id, delta)
	}
	return nil
}

// CreateOrder appends an immutable order row.
func (db *DB) CreateOrder(ctx context.Context, userID, stockID string, quantity, price int64, side models.Side) (*models.Order, error) {
	order := &models.Order{}
	err := db.q.QueryRow(ctx,
		"INSERT INTO orders (id, user_id, stock_id, quantity, price, side) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, user_id, stock_id, quantity, price, side, created_at",
		uuid.NewString(), userID, stockID, quantity, price, side).
		Scan(&order.ID, &order.UserID, &order.StockID, &order.Quantity, &order.Price, &order.Side, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

// ListOrders retrieves every order, oldest first.
func (db *DB) ListOrders(ctx context.Context) ([]models.Order, error) {
	return db.queryOrders(ctx,
		"SELECT id, user_id, stock_id, quantity, price, side, created_at FROM orders ORDER BY created_at ASC")
}

// ListUserOrders retrieves one user's orders, oldest first.
func (db *DB) ListUserOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return db.queryOrders(ctx,
		"SELECT id, user_id, stock_id, quantity, price, side, created_at FROM orders WHERE user_id = $1 ORDER BY created_at ASC", userID)
}

func (db *DB) queryOrders(ctx context.Context, sql string, args ...any) ([]models.Order, error) {
	rows, err := db.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.StockID, &order.Quantity, &order.Price, &order.Side, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// GetUserStock retrieves one holding, or nil when the user has never traded
// that stock.
func (db *DB) GetUserStock(ctx context.Context, userID, stockID string) (*models.UserStock, error) {
	us := &models.UserStock{}
	err := db.q.QueryRow(ctx,
		"SELECT id, user_id, stock_id, quantity FROM user_stocks WHERE user_id = $1 AND stock_id = $2",
		userID, stockID).
		Scan(&us.ID, &us.UserID, &us.StockID, &us.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user stock: %w", err)
	}
	return us, nil
}

// AdjustUserStock upserts a holding by delta: first trade of a stock creates
// the row, later trades increment or decrement it. Decrements that would go
// negative are rejected.
func (db *DB) AdjustUserStock(ctx context.Context, userID, stockID string, delta int64) error {
	tag, err := db.q.Exec(ctx, `
		INSERT INTO user_stocks (id, user_id, stock_id, quantity) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, stock_id)
		DO UPDATE SET quantity = user_stocks.quantity + EXCLUDED.quantity
		WHERE user_stocks.quantity + EXCLUDED.quantity >= 0`,
		uuid.NewString(), userID, stockID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust user stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s stock %s: holding adjustment by %d rejected", userID, stockID, delta)
	}
	return nil
}

// CreateRound inserts an unstarted round.
func (db *DB) CreateRound(ctx context.Context, roundNumber int) (*models.RoundInfo, error) {
	round := &models.RoundInfo{}
	err := db.q.QueryRow(ctx,
		"INSERT INTO round_infos (id, round_number) VALUES ($1, $2) RETURNING id, round_number, started_at, ended_at",
		uuid.NewString(), roundNumber).
		Scan(&round.ID, &round.RoundNumber, &round.StartedAt, &round.EndedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create round: %w", err)
	}
	return round, nil
}

// ListRounds retrieves all rounds in round order.
func (db *DB) ListRounds(ctx context.Context) ([]models.RoundInfo, error) {
	rows, err := db.q.Query(ctx,
		"SELECT id, round_number, started_at, ended_at FROM round_infos ORDER BY round_number ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []models.RoundInfo
	for rows.Next() {
		var round models.RoundInfo
		if err := rows.Scan(&round.ID, &round.RoundNumber, &round.StartedAt, &round.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

// StartNextRound stamps started_at on the lowest-numbered unstarted round in
// a single statement, so concurrent callers cannot start two rounds. Returns
// nil when every round has already been started.
func (db *DB) StartNextRound(ctx context.Context) (*models.RoundInfo, error) {
	round := &models.RoundInfo{}
	err := db.q.QueryRow(ctx, `
		UPDATE round_infos SET started_at = NOW()
		WHERE id = (
			SELECT id FROM round_infos
			WHERE started_at IS NULL
			ORDER BY round_number ASC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING id, round_number, started_at, ended_at`).
		Scan(&round.ID, &round.RoundNumber, &round.StartedAt, &round.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start round: %w", err)
	}
	return round, nil
}

// EndCurrentRound stamps ended_at on the open round. Returns nil when no
// round is open.
func (db *DB) EndCurrentRound(ctx context.Context) (*models.RoundInfo, error) {
	round := &models.RoundInfo{}
	err := db.q.QueryRow(ctx, `
		UPDATE round_infos SET ended_at = NOW()
		WHERE id = (
			SELECT id FROM round_infos
			WHERE started_at IS NOT NULL AND ended_at IS NULL
			ORDER BY round_number ASC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING id, round_number, started_at, ended_at`).
		Scan(&round.ID, &round.RoundNumber, &round.StartedAt, &round.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to end round: %w", err)
	}
	return round, nil
}

// GetCurrentRound retrieves the open round, or nil when none is open.
func (db *DB) GetCurrentRound(ctx context.Context) (*models.RoundInfo, error) {
	round := &models.RoundInfo{}
	err := db.q.QueryRow(ctx, `
		SELECT id, round_number, started_at, ended_at FROM round_infos
		WHERE started_at IS NOT NULL AND ended_at IS NULL
		ORDER BY round_number ASC
		LIMIT 1`).
		Scan(&round.ID, &round.RoundNumber, &round.StartedAt, &round.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current round: %w", err)
	}
	return round, nil
}

// CreateRoundAction persists one precomputed (stock, round) outcome.
func (db *DB) CreateRoundAction(ctx context.Context, action *models.RoundAction) (*models.RoundAction, error) {
	created := &models.RoundAction{}
	err := db.q.QueryRow(ctx,
		"INSERT INTO round_actions (id, stock_id, round_info_id, price, diff, user_id) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, stock_id, round_info_id, price, diff, user_id",
		uuid.NewString(), action.StockID, action.RoundInfoID, action.Price, action.Diff, action.UserID).
		Scan(&created.ID, &created.StockID, &created.RoundInfoID, &created.Price, &created.Diff, &created.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to create round action: %w", err)
	}
	return created, nil
}

// ListRoundActions retrieves every round action.
func (db *DB) ListRoundActions(ctx context.Context) ([]models.RoundAction, error) {
	rows, err := db.q.Query(ctx,
		"SELECT id, stock_id, round_info_id, price, diff, user_id FROM round_actions")
	if err != nil {
		return nil, fmt.Errorf("failed to list round actions: %w", err)
	}
	defer rows.Close()

	var actions []models.RoundAction
	for rows.Next() {
		var action models.RoundAction
		if err := rows.Scan(&action.ID, &action.StockID, &action.RoundInfoID, &action.Price, &action.Diff, &action.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan round action: %w", err)
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

// ListRoundActionsByRoundNumber retrieves the stock-joined actions recorded
// for one round number, the settlement engine's input.
func (db *DB) ListRoundActionsByRoundNumber(ctx context.Context, roundNumber int) ([]models.RoundActionWithStock, error) {
	rows, err := db.q.Query(ctx, `
		SELECT ra.id, ra.stock_id, ra.round_info_id, ra.price, ra.diff, ra.user_id,
		       s.id, s.name, s.price, s.prev_price, s.quantity, s.created_at,
		       ri.id, ri.round_number, ri.started_at, ri.ended_at
		FROM round_actions ra
		JOIN stocks s ON s.id = ra.stock_id
		JOIN round_infos ri ON ri.id = ra.round_info_id
		WHERE ri.round_number = $1
		ORDER BY s.name ASC`, roundNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list round actions: %w", err)
	}
	defer rows.Close()

	var actions []models.RoundActionWithStock
	for rows.Next() {
		var a models.RoundActionWithStock
		if err := rows.Scan(
			&a.ID, &a.StockID, &a.RoundInfoID, &a.RoundAction.Price, &a.Diff, &a.UserID,
			&a.Stock.ID, &a.Stock.Name, &a.Stock.Price, &a.Stock.PrevPrice, &a.Stock.Quantity, &a.Stock.CreatedAt,
			&a.Round.ID, &a.Round.RoundNumber, &a.Round.StartedAt, &a.Round.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan round action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// AssignRoundActions stamps a user onto a batch of round actions.
func (db *DB) AssignRoundActions(ctx context.Context, ids []string, userID string) error {
	_, err := db.q.Exec(ctx, "UPDATE round_actions SET user_id = $1 WHERE id = ANY($2)", userID, ids)
	if err != nil {
		return fmt.Errorf("failed to assign round actions: %w", err)
	}
	return nil
}
