package models

import "time"

// Side marks an order as a purchase or a sale.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// User represents a registered player. Password is stored and compared as
// plaintext, matching the deployed game; see DESIGN.md before changing this.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Password  string    `json:"-"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stock is a tradable instrument. Quantity is the shared market inventory,
// decremented on buys and incremented on sells. PrevPrice is the live price
// before the last settlement and exists only for display deltas.
type Stock struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	PrevPrice int64     `json:"prevPrice"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
}

// Order is an immutable append-only trade record.
type Order struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	StockID   string    `json:"stockId"`
	Quantity  int64     `json:"quantity"`
	Price     int64     `json:"price"`
	Side      Side      `json:"side"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserStock is a per-user per-stock holding, created lazily on first trade.
type UserStock struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	StockID  string `json:"stockId"`
	Quantity int64  `json:"quantity"`
}

// RoundInfo is one game period. Lifecycle: both timestamps null (unstarted),
// StartedAt set (open), EndedAt set (ended). At most one round is open.
type RoundInfo struct {
	ID          string     `json:"id"`
	RoundNumber int        `json:"roundNumber"`
	StartedAt   *time.Time `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt"`
}

// RoundAction is the precomputed outcome for one stock in one round: Price is
// the price after applying Diff. UserID is filled by the pre-game distribution
// step and plays no part in settlement.
type RoundAction struct {
	ID          string  `json:"id"`
	StockID     string  `json:"stockId"`
	RoundInfoID string  `json:"roundInfoId"`
	Price       int64   `json:"price"`
	Diff        int64   `json:"diff"`
	UserID      *string `json:"userId"`
}

// RoundActionWithStock joins an action with its stock and round, the shape the
// settlement engine and user detail queries consume.
type RoundActionWithStock struct {
	RoundAction
	Stock Stock     `json:"stock"`
	Round RoundInfo `json:"roundInfo"`
}

// Holding joins a user's position with the stock it is in.
type Holding struct {
	UserStock
	Stock Stock `json:"stock"`
}

// UserDetail is the full player view returned after login and orders.
type UserDetail struct {
	User
	Holdings     []Holding              `json:"userStocks"`
	RoundActions []RoundActionWithStock `json:"roundActions"`
}
