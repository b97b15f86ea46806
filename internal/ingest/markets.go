package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyinsider/scorer/internal/store"
)

const (
	// GammaAPIURL is the Polymarket Gamma API endpoint for market data
	GammaAPIURL = "https://gamma-api.polymarket.com"
	// DefaultMarketLimit is the number of markets to fetch when warming the cache
	DefaultMarketLimit = 100
	// DefaultMarketTTL is how long market metadata stays cached
	DefaultMarketTTL = 2 * time.Minute
)

// resolvedPrice is the outcome price at or above which a closed market
// counts as settled in that outcome's favor.
var resolvedPrice = decimal.RequireFromString("0.99")

// GammaMarket represents a Polymarket market from the Gamma API.
type GammaMarket struct {
	ID            string              `json:"id"`
	Question      string              `json:"question"`
	ConditionID   string              `json:"conditionId"`
	Slug          string              `json:"slug"`
	EndDate       string              `json:"endDate"`
	Category      string              `json:"category"`
	Active        bool                `json:"active"`
	Closed        bool                `json:"closed"`
	LiquidityNum  decimal.NullDecimal `json:"liquidityNum"`
	Volume24hr    decimal.NullDecimal `json:"volume24hr"`
	Outcomes      string              `json:"outcomes"`      // JSON array as string
	OutcomePrices string              `json:"outcomePrices"` // JSON array as string
	Tags          []struct {
		Label string `json:"label"`
	} `json:"tags,omitempty"`
}

type marketEntry struct {
	info    *store.MarketInfo
	expires time.Time
}

// GammaClient fetches market metadata and caches it per condition ID.
type GammaClient struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	markets map[string]marketEntry
}

// NewGammaClient creates a new GammaClient.
func NewGammaClient(baseURL string, ttl time.Duration) *GammaClient {
	if baseURL == "" {
		baseURL = GammaAPIURL
	}
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}

	return &GammaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		ttl:     ttl,
		now:     time.Now,
		markets: make(map[string]marketEntry),
	}
}

// MarketInfo returns metadata for a condition ID. It returns (nil, nil)
// when Gamma does not know the market.
func (g *GammaClient) MarketInfo(ctx context.Context, conditionID string) (*store.MarketInfo, error) {
	if info, ok := g.cached(conditionID); ok {
		return info, nil
	}

	q := url.Values{}
	q.Set("condition_ids", conditionID)
	markets, err := g.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	var info *store.MarketInfo
	for _, m := range markets {
		if m.ConditionID == conditionID {
			info = ToMarketInfo(m)
			break
		}
	}

	g.put(conditionID, info)
	return info, nil
}

// Warm fetches active markets and caches them.
func (g *GammaClient) Warm(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultMarketLimit
	}

	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("limit", fmt.Sprint(limit))

	markets, err := g.fetch(ctx, q)
	if err != nil {
		return 0, err
	}

	for _, m := range markets {
		if m.ConditionID == "" {
			continue
		}
		g.put(m.ConditionID, ToMarketInfo(m))
	}

	slog.Info("fetched_active_markets", "market_count", len(markets))
	return len(markets), nil
}

func (g *GammaClient) fetch(ctx context.Context, q url.Values) ([]GammaMarket, error) {
	endpoint := g.baseURL + "/markets?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch markets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var markets []GammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return nil, fmt.Errorf("failed to decode markets: %w", err)
	}

	return markets, nil
}

func (g *GammaClient) cached(conditionID string) (*store.MarketInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, ok := g.markets[conditionID]
	if !ok || g.now().After(entry.expires) {
		return nil, false
	}
	return entry.info, true
}

func (g *GammaClient) put(conditionID string, info *store.MarketInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markets[conditionID] = marketEntry{info: info, expires: g.now().Add(g.ttl)}
}

// Cleanup drops expired cache entries.
func (g *GammaClient) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, entry := range g.markets {
		if now.After(entry.expires) {
			delete(g.markets, id)
		}
	}
}

// ToMarketInfo converts a Gamma market to store.MarketInfo.
func ToMarketInfo(m GammaMarket) *store.MarketInfo {
	info := &store.MarketInfo{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Category:    m.Category,
	}

	if info.Category == "" && len(m.Tags) > 0 {
		info.Category = m.Tags[0].Label
	}

	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		info.EndDate = &t
	}

	if m.LiquidityNum.Valid {
		v := m.LiquidityNum.Decimal.InexactFloat64()
		info.Liquidity = &v
	}

	if m.Volume24hr.Valid {
		v := m.Volume24hr.Decimal.InexactFloat64()
		info.Volume24h = &v
	}

	if m.Closed {
		if side, ok := winningSide(m.Outcomes, m.OutcomePrices); ok {
			info.Resolved = true
			info.WinningSide = side
		}
	}

	return info
}

// winningSide reads the settled outcome from Gamma's string-encoded arrays.
func winningSide(outcomesJSON, pricesJSON string) (store.Side, bool) {
	var outcomes []string
	var prices []string
	if err := json.Unmarshal([]byte(outcomesJSON), &outcomes); err != nil {
		return "", false
	}
	if err := json.Unmarshal([]byte(pricesJSON), &prices); err != nil {
		return "", false
	}

	for i, p := range prices {
		if i >= len(outcomes) {
			break
		}
		price, err := decimal.NewFromString(p)
		if err != nil || price.LessThan(resolvedPrice) {
			continue
		}
		switch strings.ToLower(outcomes[i]) {
		case "yes":
			return store.SideYes, true
		case "no":
			return store.SideNo, true
		}
	}
	return "", false
}
