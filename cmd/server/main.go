package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/hansol-club/stockfest/internal/api"
	"github.com/hansol-club/stockfest/internal/auth"
	"github.com/hansol-club/stockfest/internal/config"
	"github.com/hansol-club/stockfest/internal/db"
	"github.com/hansol-club/stockfest/internal/game"
	"github.com/hansol-club/stockfest/internal/logger"
	"github.com/hansol-club/stockfest/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type hub struct {
	clients map[*wsClient]bool
	mu      sync.RWMutex
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]bool)}
}

// marketSnapshot is what the feed pushes: the full price board plus the open
// round, the same data the market page polls for.
type marketSnapshot struct {
	Stocks []models.Stock    `json:"stocks"`
	Round  *models.RoundInfo `json:"round"`
}

func (h *hub) broadcastMarket(ctx context.Context, store game.Store, gameSvc *game.Service, log *zap.Logger) {
	stocks, err := store.ListStocks(ctx)
	if err != nil {
		log.Error("failed to load stocks for broadcast", zap.Error(err))
		return
	}
	round, err := gameSvc.CurrentRound(ctx)
	if err != nil {
		log.Error("failed to load round for broadcast", zap.Error(err))
		return
	}
	data, err := json.Marshal(marketSnapshot{Stocks: stocks, Round: round})
	if err != nil {
		log.Error("failed to marshal market snapshot", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	var stale []*wsClient
	for client := range h.clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			stale = append(stale, client)
		}
	}
	if len(stale) > 0 {
		go h.drop(stale)
	}
}

func (h *hub) drop(clients []*wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range clients {
		delete(h.clients, c)
		c.conn.Close()
	}
}

func (h *hub) handleWebSocket(store game.Store, gameSvc *game.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("failed to upgrade connection", zap.Error(err))
			return
		}

		client := &wsClient{conn: conn}
		h.mu.Lock()
		h.clients[client] = true
		h.mu.Unlock()

		// Send the current board immediately on connect.
		h.broadcastMarket(r.Context(), store, gameSvc, log)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop([]*wsClient{client})
				break
			}
		}
	}
}

// Main entry point: sets up config, database, services, and the HTTP server.
func main() {
	ctx := context.Background()

	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	store, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer store.Close(ctx)

	gameSvc := game.NewService(store, log)
	authSvc := auth.NewService(store, cfg.JWTSecret)
	handler := api.NewHandler(store, gameSvc, authSvc, log)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	marketHub := newHub()
	r.Get("/ws", marketHub.handleWebSocket(store, gameSvc, log))

	// Public endpoints
	r.Post("/api/login", handler.Login)
	r.Get("/api/stocks", handler.GetStocks)
	r.Get("/api/round", handler.GetCurrentRound)

	// Protected endpoints (require a login token)
	r.Group(func(r chi.Router) {
		r.Use(handler.TokenAuthMiddleware)
		r.Post("/api/order", handler.PlaceOrder)
		r.Get("/api/orders", handler.GetUserOrders)
		r.Get("/api/users/{id}", handler.GetUserDetail)
	})

	// Periodic market feed push
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		for range ticker.C {
			marketHub.broadcastMarket(ctx, store, gameSvc, log)
		}
	}()

	log.Info("starting server", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}
