// Package main is the entry point for the Polyinsider scoring engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/polyinsider/scorer/internal/analyzer"
	"github.com/polyinsider/scorer/internal/api"
	"github.com/polyinsider/scorer/internal/config"
	"github.com/polyinsider/scorer/internal/ingest"
	"github.com/polyinsider/scorer/internal/metrics"
	"github.com/polyinsider/scorer/internal/scoring"
	"github.com/polyinsider/scorer/internal/store"
)

const (
	// TradeChannelBuffer is the size of the buffered trade channel
	TradeChannelBuffer = 1000
	// DrainTimeout bounds how long shutdown spends scoring queued trades
	DrainTimeout = 5 * time.Second
	// ResolutionInterval is how often held markets are checked for settlement
	ResolutionInterval = 10 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("polyinsider starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"http_port", cfg.HTTPPort,
		"store_backend", cfg.StoreBackend,
		"redis_url", cfg.MaskedRedisURL(),
		"redis_password", cfg.MaskedRedisPassword(),
		"data_api_url", cfg.DataAPIURL,
		"gamma_api_url", cfg.GammaAPIURL,
		"activity_ws_url", cfg.ActivityWSURL,
		"enable_ws", cfg.EnableWS,
		"trade_poll_interval", cfg.TradePollInterval,
		"trade_poll_limit", cfg.TradePollLimit,
		"min_trade_usd", cfg.MinTradeUSD,
		"market_cache_ttl", cfg.MarketCacheTTL,
		"worker_count", cfg.WorkerCount,
		"result_window", cfg.ResultWindow,
		"high_score_threshold", cfg.HighScoreThreshold,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wallet history store
	wallets, closeStore, err := openStore(cfg, logger)
	if err != nil {
		slog.Error("failed to open wallet store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	m := metrics.New()

	// Market metadata with periodic cache cleanup
	gamma := ingest.NewGammaClient(cfg.GammaAPIURL, cfg.MarketCacheTTL)
	slog.Info("fetching_active_markets")
	if _, err := gamma.Warm(ctx, ingest.DefaultMarketLimit); err != nil {
		slog.Warn("failed to fetch active markets, context will load lazily", "error", err)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				gamma.Cleanup()
			}
		}
	}()

	scorer := scoring.NewScorer()
	engine := analyzer.New(wallets, scorer,
		analyzer.WithMarkets(gamma),
		analyzer.WithRecorder(m),
		analyzer.WithWorkers(cfg.WorkerCount),
		analyzer.WithLogger(logger),
	)

	// Pick up markets that settle after wallets traded them
	go func() {
		ticker := time.NewTicker(ResolutionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := engine.RefreshResolutions(ctx)
				if err != nil {
					slog.Warn("resolution_refresh_failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("markets_resolved", "count", n)
				}
			}
		}
	}()
	window := analyzer.NewResultWindow(cfg.ResultWindow, cfg.HighScoreThreshold)

	tradeChan := make(chan store.Trade, TradeChannelBuffer)

	// REST poller is the primary feed
	poller := ingest.NewTradesPoller(cfg.DataAPIURL, cfg.TradePollInterval, cfg.TradePollLimit, cfg.MinTradeUSD, tradeChan)
	poller.SetRecorder(m)

	// Score the current page as one ranked batch before live polling
	if backlog, err := poller.Prime(ctx); err != nil {
		slog.Warn("initial_backfill_failed", "error", err)
	} else if results, err := engine.AnalyzeBatch(ctx, backlog); err != nil {
		slog.Warn("initial_backfill_failed", "error", err)
	} else {
		window.Add(results...)
		slog.Info("initial_backfill_complete", "trades", len(results))
	}

	go poller.Start(ctx)
	slog.Info("rest_poller_started", "url", cfg.DataAPIURL, "interval", cfg.TradePollInterval)

	// Live activity feed is optional
	var listener *ingest.ActivityListener
	if cfg.EnableWS {
		listener = ingest.NewActivityListener(cfg.ActivityWSURL, tradeChan)
		listener.SetRecorder(m)
		listener.Start(ctx)
	}

	p := &pipeline{engine: engine, window: window, highScore: cfg.HighScoreThreshold}

	// Start worker pool to process trades
	for i := 0; i < cfg.WorkerCount; i++ {
		go p.worker(ctx, i, tradeChan)
	}

	// HTTP API
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      api.NewServer(window, wallets, m.Handler(), logger).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("http_server_listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server_error", "error", err)
			cancel()
		}
	}()

	slog.Info("engine_started",
		"status", "listening for trades",
		"workers", cfg.WorkerCount,
		"ws_enabled", cfg.EnableWS,
	)

	select {
	case sig := <-sigChan:
		slog.Info("shutdown_signal_received", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()

	// Graceful shutdown
	slog.Info("shutting_down", "status", "stopping feeds")
	if listener != nil {
		listener.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server_shutdown_error", "error", err)
	}

	// Score whatever is still queued
	p.drainTrades(shutdownCtx, tradeChan)

	slog.Info("shutdown_complete")
}

// openStore selects the wallet store backend.
func openStore(cfg *config.Config, logger *slog.Logger) (store.WalletStore, func(), error) {
	if cfg.StoreBackend != config.StoreRedis {
		return store.NewMemoryStore(), func() {}, nil
	}

	rs, err := store.NewRedisStore(cfg.RedisURL, cfg.RedisPassword, cfg.RedisKeyPrefix, logger)
	if err != nil {
		return nil, nil, err
	}
	return rs, func() {
		if err := rs.Close(); err != nil {
			slog.Warn("redis_close_failed", "error", err)
		}
	}, nil
}

// pipeline connects the trade channel to the analyzer and result window.
type pipeline struct {
	engine    *analyzer.Analyzer
	window    *analyzer.ResultWindow
	highScore int
}

// worker scores trades and publishes results to the window.
func (p *pipeline) worker(ctx context.Context, id int, tradeChan <-chan store.Trade) {
	slog.Debug("worker_started", "id", id)
	defer slog.Debug("worker_stopped", "id", id)

	for {
		select {
		case <-ctx.Done():
			return
		case trade, ok := <-tradeChan:
			if !ok {
				return
			}
			p.process(ctx, trade)
		}
	}
}

func (p *pipeline) process(ctx context.Context, trade store.Trade) {
	result, err := p.engine.Analyze(ctx, trade)
	if err != nil {
		var invalid *store.InvalidTradeError
		if !errors.As(err, &invalid) {
			slog.Warn("analyze_failed", "trade_id", trade.ID, "error", err)
		}
		return
	}

	p.window.Add(result)

	if result.InsiderScore >= p.highScore {
		slog.Info("high_score_trade",
			"score", result.InsiderScore,
			"severity", result.Severity,
			"wallet", truncateID(result.Wallet),
			"market", truncateID(result.MarketID),
			"notional", result.Notional(),
		)
	}
}

// drainTrades processes remaining trades in the channel during shutdown.
func (p *pipeline) drainTrades(ctx context.Context, tradeChan <-chan store.Trade) {
	drained := 0
	defer func() {
		if drained > 0 {
			slog.Info("trades_drained", "count", drained)
		}
	}()

	for {
		select {
		case trade := <-tradeChan:
			p.process(ctx, trade)
			drained++
		case <-ctx.Done():
			return
		default:
			return
		}
	}
}

// truncateID shortens an ID for logging.
func truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + "..." + id[len(id)-4:]
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}
