package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hansol-club/stockfest/internal/auth"
	"github.com/hansol-club/stockfest/internal/game"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	Store game.Store
	Game  *game.Service
	Auth  *auth.Service
	Log   *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(store game.Store, gameSvc *game.Service, authSvc *auth.Service, log *zap.Logger) *Handler {
	return &Handler{Store: store, Game: gameSvc, Auth: authSvc, Log: log}
}

// Login handles POST /api/login: plaintext credential check, returns the user
// and a signed token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error": "Username and password required"}`, http.StatusBadRequest)
		return
	}

	user, token, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, game.ErrUserNotFound):
		http.Error(w, `{"error": "Unknown user"}`, http.StatusUnauthorized)
		return
	case errors.Is(err, auth.ErrWrongPassword):
		http.Error(w, `{"error": "Wrong password"}`, http.StatusUnauthorized)
		return
	case err != nil:
		h.Log.Error("login failed", zap.Error(err))
		http.Error(w, `{"error": "Login failed"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

// TokenAuthMiddleware verifies bearer tokens and stores the user id in the
// request context.
func (h *Handler) TokenAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.Auth.UserIDFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PlaceOrder handles POST /api/order. The payload keeps the legacy field set
// (userBalance, userStocks, totalAmount) but validation runs against stored
// state only, and the order's userId must match the token.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(userIDKey).(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req game.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.UserID != userID {
		http.Error(w, `{"error": "Order user does not match token"}`, http.StatusForbidden)
		return
	}
	if len(req.Orders) == 0 {
		http.Error(w, `{"error": "No order lines"}`, http.StatusBadRequest)
		return
	}
	for _, line := range req.Orders {
		if line.Quantity <= 0 || line.Price <= 0 {
			http.Error(w, `{"error": "Price and quantity must be positive"}`, http.StatusBadRequest)
			return
		}
	}

	result, err := h.Game.PlaceOrder(r.Context(), req)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": result.Message,
		"user":    result.User,
		"stocks":  result.Stocks,
	})
}

// writeOrderError maps game error kinds onto responses. Unexpected errors
// collapse into a generic processing failure.
func (h *Handler) writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrInvalidOrderType):
		http.Error(w, `{"error": "Invalid order type"}`, http.StatusBadRequest)
	case errors.Is(err, game.ErrUserNotFound):
		http.Error(w, `{"error": "User not found"}`, http.StatusNotFound)
	case errors.Is(err, game.ErrStockNotFound):
		http.Error(w, `{"error": "Stock not found"}`, http.StatusNotFound)
	case errors.Is(err, game.ErrInsufficientFunds):
		http.Error(w, `{"error": "Insufficient balance"}`, http.StatusBadRequest)
	case errors.Is(err, game.ErrInsufficientInventory):
		http.Error(w, `{"error": "Insufficient stock quantity"}`, http.StatusBadRequest)
	case errors.Is(err, game.ErrInsufficientHoldings):
		http.Error(w, `{"error": "Insufficient holdings"}`, http.StatusBadRequest)
	default:
		h.Log.Error("order processing failed", zap.Error(err))
		http.Error(w, `{"error": "Order processing failed"}`, http.StatusInternalServerError)
	}
}

// GetStocks handles GET /api/stocks, the market board data.
func (h *Handler) GetStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.Store.ListStocks(r.Context())
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve stocks"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(stocks)
}

// GetCurrentRound handles GET /api/round; the body is null between rounds.
func (h *Handler) GetCurrentRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.Game.CurrentRound(r.Context())
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve round"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(round)
}

// GetUserDetail handles GET /api/users/{id}: holdings and assigned round
// actions for the token's own user.
func (h *Handler) GetUserDetail(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(userIDKey).(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if chi.URLParam(r, "id") != userID {
		http.Error(w, `{"error": "Forbidden"}`, http.StatusForbidden)
		return
	}

	detail, err := h.Store.GetUserDetail(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve user"}`, http.StatusInternalServerError)
		return
	}
	if detail == nil {
		http.Error(w, `{"error": "User not found"}`, http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(detail)
}

// GetUserOrders handles GET /api/orders, the caller's trade history.
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(userIDKey).(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orders, err := h.Store.ListUserOrders(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve orders"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(orders)
}
