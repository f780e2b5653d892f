package game

import "errors"

// Failure kinds surfaced to callers. Handlers match these with errors.Is
// instead of parsing message text.
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrStockNotFound         = errors.New("stock not found")
	ErrInsufficientFunds     = errors.New("insufficient balance")
	ErrInsufficientInventory = errors.New("insufficient stock quantity")
	ErrInsufficientHoldings  = errors.New("insufficient holdings")
	ErrInvalidOrderType      = errors.New("invalid order type")
	ErrNoEligibleRound       = errors.New("no eligible round")
)
