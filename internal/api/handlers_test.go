package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hansol-club/stockfest/internal/auth"
	"github.com/hansol-club/stockfest/internal/game"
	"github.com/hansol-club/stockfest/internal/models"
	"github.com/hansol-club/stockfest/internal/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	store  *testutil.MemStore
	router *chi.Mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := testutil.NewMemStore()
	log := zap.NewNop()
	gameSvc := game.NewService(store, log)
	authSvc := auth.NewService(store, "test-secret")
	handler := NewHandler(store, gameSvc, authSvc, log)

	router := chi.NewRouter()
	router.Post("/api/login", handler.Login)
	router.Get("/api/stocks", handler.GetStocks)
	router.Get("/api/round", handler.GetCurrentRound)
	router.Group(func(r chi.Router) {
		r.Use(handler.TokenAuthMiddleware)
		r.Post("/api/order", handler.PlaceOrder)
		r.Get("/api/orders", handler.GetUserOrders)
		r.Get("/api/users/{id}", handler.GetUserDetail)
	})

	return &testEnv{store: store, router: router}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, err := env.store.CreateUser(ctx, "alice", "1234", 10000)
	require.NoError(t, err)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
	}{
		{
			name:           "Success",
			body:           map[string]string{"username": "alice", "password": "1234"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "WrongPassword",
			body:           map[string]string{"username": "alice", "password": "9999"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "UnknownUser",
			body:           map[string]string{"username": "bob", "password": "1234"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "MissingFields",
			body:           map[string]string{"username": "alice"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/login", "", tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())

			if tt.expectedStatus == http.StatusOK {
				var resp struct {
					User  models.User `json:"user"`
					Token string      `json:"token"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, user.ID, resp.User.ID)
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func TestHandler_PlaceOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, err := env.store.CreateUser(ctx, "alice", "1234", 1000)
	require.NoError(t, err)
	stock, err := env.store.CreateStock(ctx, "alpha", 100, 5)
	require.NoError(t, err)
	token := env.login(t, "alice", "1234")

	// The legacy payload shape: client-claimed balance and holdings are
	// carried but must not influence validation.
	body := map[string]interface{}{
		"type":        "buy",
		"userId":      user.ID,
		"totalAmount": 300,
		"userBalance": 999999,
		"userStocks":  []map[string]interface{}{},
		"orders": []map[string]interface{}{
			{"stockId": stock.ID, "quantity": 3, "price": 100},
		},
	}
	rec := env.do(t, http.MethodPost, "/api/order", token, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		User    models.UserDetail `json:"user"`
		Stocks  []models.Stock    `json:"stocks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(700), resp.User.Balance)
	require.Len(t, resp.Stocks, 1)
	assert.Equal(t, int64(2), resp.Stocks[0].Quantity)
	require.Len(t, resp.User.Holdings, 1)
	assert.Equal(t, int64(3), resp.User.Holdings[0].UserStock.Quantity)
}

func TestHandler_PlaceOrder_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, err := env.store.CreateUser(ctx, "alice", "1234", 1000)
	require.NoError(t, err)
	stock, err := env.store.CreateStock(ctx, "alpha", 100, 5)
	require.NoError(t, err)
	token := env.login(t, "alice", "1234")

	orderBody := func(typ, userID string, qty int64) map[string]interface{} {
		return map[string]interface{}{
			"type":   typ,
			"userId": userID,
			"orders": []map[string]interface{}{
				{"stockId": stock.ID, "quantity": qty, "price": 100},
			},
		}
	}

	tests := []struct {
		name           string
		token          string
		body           map[string]interface{}
		expectedStatus int
	}{
		{
			name:           "NoToken",
			token:          "",
			body:           orderBody("buy", user.ID, 1),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "UserMismatch",
			token:          token,
			body:           orderBody("buy", "someone-else", 1),
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "InvalidType",
			token:          token,
			body:           orderBody("short", user.ID, 1),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Oversell",
			token:          token,
			body:           orderBody("sell", user.ID, 1),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "InventoryExceeded",
			token:          token,
			body:           orderBody("buy", user.ID, 6),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "ZeroQuantity",
			token:          token,
			body:           orderBody("buy", user.ID, 0),
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/order", tt.token, tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
		})
	}

	// None of the rejected requests left writes behind.
	gotUser, err := env.store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), gotUser.Balance)
	gotStock, err := env.store.GetStockByID(ctx, stock.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), gotStock.Quantity)
}

func TestHandler_GetStocksAndRound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.store.CreateStock(ctx, "alpha", 2000, 20)
	require.NoError(t, err)
	_, err = env.store.CreateRound(ctx, 1)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/stocks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stocks []models.Stock
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stocks))
	require.Len(t, stocks, 1)
	assert.Equal(t, "alpha", stocks[0].Name)

	// No round open yet.
	rec = env.do(t, http.MethodGet, "/api/round", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())

	_, err = env.store.StartNextRound(ctx)
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/round", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var round models.RoundInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &round))
	assert.Equal(t, 1, round.RoundNumber)
}

func TestHandler_GetUserDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, err := env.store.CreateUser(ctx, "alice", "1234", 10000)
	require.NoError(t, err)
	_, err = env.store.CreateUser(ctx, "bob", "1234", 10000)
	require.NoError(t, err)
	token := env.login(t, "alice", "1234")

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/users/%s", user.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail models.UserDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, user.ID, detail.ID)

	// Other users' detail is off limits.
	bob, err := env.store.GetUserByName(ctx, "bob")
	require.NoError(t, err)
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/users/%s", bob.ID), token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_GetUserOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, err := env.store.CreateUser(ctx, "alice", "1234", 1000)
	require.NoError(t, err)
	stock, err := env.store.CreateStock(ctx, "alpha", 100, 5)
	require.NoError(t, err)
	_, err = env.store.CreateOrder(ctx, user.ID, stock.ID, 2, 100, models.SideBuy)
	require.NoError(t, err)
	token := env.login(t, "alice", "1234")

	rec := env.do(t, http.MethodGet, "/api/orders", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, models.SideBuy, orders[0].Side)
}
