// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all configuration values for the scoring engine.
type Config struct {
	// HTTP API
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Wallet history store
	StoreBackend   string `env:"STORE_BACKEND" envDefault:"memory"`
	RedisURL       string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"polyinsider:"`

	// Polymarket feeds
	DataAPIURL        string  `env:"DATA_API_URL" envDefault:"https://data-api.polymarket.com"`
	GammaAPIURL       string  `env:"GAMMA_API_URL" envDefault:"https://gamma-api.polymarket.com"`
	ActivityWSURL     string  `env:"ACTIVITY_WS_URL" envDefault:"wss://ws-live-data.polymarket.com"`
	EnableWS          bool    `env:"ENABLE_WS" envDefault:"false"`
	TradePollSeconds  int     `env:"TRADE_POLL_INTERVAL_SECONDS" envDefault:"30"`
	TradePollLimit    int     `env:"TRADE_POLL_LIMIT" envDefault:"100"`
	MinTradeUSD       float64 `env:"MIN_TRADE_USD" envDefault:"0"`
	MarketCacheTTLSec int     `env:"MARKET_CACHE_TTL_SECONDS" envDefault:"120"`

	// Analysis
	WorkerCount        int `env:"WORKER_COUNT" envDefault:"5"`
	ResultWindow       int `env:"RESULT_WINDOW" envDefault:"500"`
	HighScoreThreshold int `env:"HIGH_SCORE_THRESHOLD" envDefault:"60"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`

	// Computed durations (not from env)
	TradePollInterval time.Duration `env:"-"`
	MarketCacheTTL    time.Duration `env:"-"`
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.TradePollInterval = time.Duration(cfg.TradePollSeconds) * time.Second
	cfg.MarketCacheTTL = time.Duration(cfg.MarketCacheTTLSec) * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreMemory, StoreRedis, c.StoreBackend)
	}

	if c.TradePollSeconds < 0 {
		return fmt.Errorf("TRADE_POLL_INTERVAL_SECONDS must not be negative")
	}

	if c.TradePollLimit < 1 {
		return fmt.Errorf("TRADE_POLL_LIMIT must be at least 1")
	}

	if c.MinTradeUSD < 0 {
		return fmt.Errorf("MIN_TRADE_USD must not be negative")
	}

	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}

	if c.ResultWindow < 1 {
		return fmt.Errorf("RESULT_WINDOW must be at least 1")
	}

	if c.HighScoreThreshold < 0 || c.HighScoreThreshold > 100 {
		return fmt.Errorf("HIGH_SCORE_THRESHOLD must be between 0 and 100")
	}

	return nil
}

// MaskedRedisURL returns the Redis URL with most characters hidden for logging.
func (c *Config) MaskedRedisURL() string {
	return maskSecret(c.RedisURL)
}

// MaskedRedisPassword returns the Redis password with most characters hidden for logging.
func (c *Config) MaskedRedisPassword() string {
	return maskSecret(c.RedisPassword)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
