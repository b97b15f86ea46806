package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/polyinsider/scorer/internal/store"
)

const (
	// DataAPIBaseURL is the Polymarket Data API endpoint
	DataAPIBaseURL = "https://data-api.polymarket.com"
	// DefaultPollInterval is the default polling interval
	DefaultPollInterval = 30 * time.Second
	// DefaultPollLimit is the number of trades requested per poll
	DefaultPollLimit = 100
	// seenCapacity bounds the dedupe memory of the poller
	seenCapacity = 5000
)

// FeedRecorder counts trades received per source.
type FeedRecorder interface {
	RecordFeedTrade(source string)
}

// TradesPoller polls the Polymarket Data API for recent trades.
type TradesPoller struct {
	baseURL   string
	client    *http.Client
	interval  time.Duration
	limit     int
	minUSD    float64
	tradeChan chan<- store.Trade
	recorder  FeedRecorder

	// seen dedupes trades across overlapping polls; order evicts oldest first
	seen  map[string]struct{}
	order []string
}

// NewTradesPoller creates a new TradesPoller.
func NewTradesPoller(baseURL string, interval time.Duration, limit int, minUSD float64, tradeChan chan<- store.Trade) *TradesPoller {
	if baseURL == "" {
		baseURL = DataAPIBaseURL
	}
	if interval == 0 {
		interval = DefaultPollInterval
	}
	if limit <= 0 {
		limit = DefaultPollLimit
	}

	return &TradesPoller{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		interval:  interval,
		limit:     limit,
		minUSD:    minUSD,
		tradeChan: tradeChan,
		seen:      make(map[string]struct{}, seenCapacity),
	}
}

// SetRecorder sets an optional feed counter.
func (p *TradesPoller) SetRecorder(r FeedRecorder) {
	p.recorder = r
}

// Start begins polling for trades. It blocks until ctx is cancelled.
func (p *TradesPoller) Start(ctx context.Context) {
	slog.Info("starting_trades_poller", "base_url", p.baseURL, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial fetch
	if err := p.poll(ctx); err != nil {
		slog.Warn("initial_poll_failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("trades_poller_stopped")
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				slog.Warn("poll_failed", "error", err)
			}
		}
	}
}

// poll fetches recent trades and sends unseen ones to the trade channel.
func (p *TradesPoller) poll(ctx context.Context) error {
	trades, err := p.FetchRecentTrades(ctx)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	sent := 0
	for _, trade := range trades {
		if p.hasSeen(trade.ID) {
			continue
		}

		// A dropped trade stays unseen so the next poll delivers it
		select {
		case p.tradeChan <- trade:
			p.markSeen(trade.ID)
			sent++
			if p.recorder != nil {
				p.recorder.RecordFeedTrade("poller")
			}
		default:
			slog.Warn("trade_channel_full_api", "dropped_trade", trade.ID)
		}
	}

	slog.Debug("trades_fetched", "count", len(trades), "new", sent)
	return nil
}

// Prime fetches the current page of trades and marks them seen, so the
// caller can analyze them as one batch before polling starts.
func (p *TradesPoller) Prime(ctx context.Context) ([]store.Trade, error) {
	trades, err := p.FetchRecentTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	fresh := trades[:0]
	for _, trade := range trades {
		if p.markSeen(trade.ID) {
			fresh = append(fresh, trade)
		}
	}
	return fresh, nil
}

// FetchRecentTrades fetches the latest taker trades.
func (p *TradesPoller) FetchRecentTrades(ctx context.Context) ([]store.Trade, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(p.limit))
	q.Set("takerOnly", "true")
	if p.minUSD > 0 {
		q.Set("filterType", "CASH")
		q.Set("filterAmount", fmt.Sprint(p.minUSD))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/trades?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}

	trades, rejected, err := ParseTrades(body)
	if err != nil {
		return nil, err
	}
	if rejected > 0 {
		slog.Debug("trades_rejected", "count", rejected)
	}

	return trades, nil
}

// markSeen records id and reports whether it was new.
func (p *TradesPoller) hasSeen(id string) bool {
	_, ok := p.seen[id]
	return ok
}

func (p *TradesPoller) markSeen(id string) bool {
	if _, ok := p.seen[id]; ok {
		return false
	}

	p.seen[id] = struct{}{}
	p.order = append(p.order, id)
	if len(p.order) > seenCapacity {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.seen, oldest)
	}
	return true
}
