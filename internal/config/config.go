package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the server and gamectl read from the environment.
type Config struct {
	Addr        string
	DatabaseURL string
	JWTSecret   string
	OddProb     float64
	GameRounds  int
}

// Load reads .env if present, then the environment. DATABASE_URL is the only
// required key.
func Load() (Config, error) {
	// Missing .env is fine, plain env vars still apply.
	_ = godotenv.Load()

	cfg := Config{
		Addr:        envDefault("ADDR", ":8080"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:   envDefault("JWT_SECRET", "stockfest-dev-secret"),
		OddProb:     envFloatDefault("ODD_PROB", 0.1),
		GameRounds:  envIntDefault("GAME_ROUNDS", 12),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OddProb < 0 || cfg.OddProb > 1 {
		return cfg, fmt.Errorf("ODD_PROB must be within [0,1], got %v", cfg.OddProb)
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
