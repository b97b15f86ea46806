// Package api serves analyzed trades and wallet histories over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/polyinsider/scorer/internal/analyzer"
	"github.com/polyinsider/scorer/internal/scoring"
	"github.com/polyinsider/scorer/internal/store"
)

const (
	// DefaultLimit is the number of trades returned when no limit is given
	DefaultLimit = 50
	// MaxLimit caps a single response
	MaxLimit = 500
)

var timeRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// Server holds the handler dependencies.
type Server struct {
	window  *analyzer.ResultWindow
	wallets store.WalletStore
	metrics http.Handler
	logger  *slog.Logger
	now     func() time.Time
}

// NewServer creates a Server. metrics may be nil to disable /metrics.
func NewServer(window *analyzer.ResultWindow, wallets store.WalletStore, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		window:  window,
		wallets: wallets,
		metrics: metrics,
		logger:  logger.With("component", "api"),
		now:     time.Now,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.logger))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/trades", s.handleTrades)
		r.Get("/wallets/{address}", s.handleWallet)
	})

	return r
}

// TradeFilters narrows /api/trades results.
type TradeFilters struct {
	// MinSize is in USD notional, not shares.
	MinSize   float64    `json:"minSize"`
	MinScore  int        `json:"minScore"`
	TimeRange string     `json:"timeRange,omitempty"`
	Side      store.Side `json:"side,omitempty"`
}

type tradesMeta struct {
	Total    int            `json:"total"`
	Returned int            `json:"returned"`
	Filters  TradeFilters   `json:"filters"`
	Stats    analyzer.Stats `json:"stats"`
}

type tradesResponse struct {
	Success bool                  `json:"success"`
	Data    []store.AnalyzedTrade `json:"data"`
	Meta    tradesMeta            `json:"meta"`
}

type walletData struct {
	Address string `json:"address"`
	store.WalletHistory
	WalletAgeDays int `json:"walletAge"`
}

type walletResponse struct {
	Success bool       `json:"success"`
	Data    walletData `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"results": s.window.Len(),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, filters, err := parseTradeQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now()
	matched := make([]store.AnalyzedTrade, 0)
	for _, t := range s.window.Ranked(0) {
		if filters.matches(t, now) {
			matched = append(matched, t)
		}
	}

	data := matched
	if len(data) > limit {
		data = data[:limit]
	}

	s.writeJSON(w, http.StatusOK, tradesResponse{
		Success: true,
		Data:    data,
		Meta: tradesMeta{
			Total:    len(matched),
			Returned: len(data),
			Filters:  filters,
			Stats:    s.window.Stats(),
		},
	})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(chi.URLParam(r, "address"))

	history, err := s.wallets.Get(r.Context(), address)
	if errors.Is(err, store.ErrWalletNotFound) {
		s.writeError(w, http.StatusNotFound, "wallet not found")
		return
	}
	if err != nil {
		s.logger.Error("wallet_read_failed", "wallet", address, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read wallet")
		return
	}

	s.writeJSON(w, http.StatusOK, walletResponse{
		Success: true,
		Data: walletData{
			Address:       address,
			WalletHistory: history,
			WalletAgeDays: scoring.WalletAgeDays(history.FirstSeenAt, s.now()),
		},
	})
}

func parseTradeQuery(r *http.Request) (int, TradeFilters, error) {
	q := r.URL.Query()
	var f TradeFilters

	limit := DefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, f, fmt.Errorf("limit must be a positive integer")
		}
		limit = min(n, MaxLimit)
	}

	if v := q.Get("minSize"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 {
			return 0, f, fmt.Errorf("minSize must be a non-negative number")
		}
		f.MinSize = n
	}

	if v := q.Get("minScore"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return 0, f, fmt.Errorf("minScore must be between 0 and 100")
		}
		f.MinScore = n
	}

	if v := q.Get("timeRange"); v != "" {
		if _, ok := timeRanges[v]; !ok {
			return 0, f, fmt.Errorf("timeRange must be one of 1h, 6h, 24h, 7d, 30d")
		}
		f.TimeRange = v
	}

	if v := q.Get("side"); v != "" {
		side := store.Side(strings.ToUpper(v))
		if side != store.SideYes && side != store.SideNo {
			return 0, f, fmt.Errorf("side must be YES or NO")
		}
		f.Side = side
	}

	return limit, f, nil
}

func (f TradeFilters) matches(t store.AnalyzedTrade, now time.Time) bool {
	if t.Notional() < f.MinSize {
		return false
	}
	if t.InsiderScore < f.MinScore {
		return false
	}
	if f.Side != "" && t.Side != f.Side {
		return false
	}
	if window, ok := timeRanges[f.TimeRange]; ok && now.Sub(t.Timestamp) > window {
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("json_encode_failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
