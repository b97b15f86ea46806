// Package ingest fetches trades and market metadata from Polymarket.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyinsider/scorer/internal/store"
)

// DataAPITrade is a trade as returned by the Data API and the live activity feed.
// Numeric fields accept both JSON numbers and quoted strings.
type DataAPITrade struct {
	ProxyWallet     string          `json:"proxyWallet"`
	Side            string          `json:"side"` // BUY or SELL
	Asset           string          `json:"asset"`
	ConditionID     string          `json:"conditionId"`
	Size            decimal.Decimal `json:"size"`
	Price           decimal.Decimal `json:"price"`
	Timestamp       int64           `json:"timestamp"`
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
	EventSlug       string          `json:"eventSlug"`
	Outcome         string          `json:"outcome"`
	OutcomeIndex    int             `json:"outcomeIndex"`
	Name            string          `json:"name,omitempty"`
	Pseudonym       string          `json:"pseudonym,omitempty"`
	TransactionHash string          `json:"transactionHash,omitempty"`
}

// ActivityMessage is the envelope of the live activity WebSocket feed.
type ActivityMessage struct {
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ParseTrades decodes a Data API /trades response. Records failing
// validation are dropped and counted in rejected.
func ParseTrades(data []byte) (trades []store.Trade, rejected int, err error) {
	var raw []DataAPITrade
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to decode trades: %w", err)
	}

	trades = make([]store.Trade, 0, len(raw))
	for _, r := range raw {
		trade, err := ConvertTrade(r)
		if err != nil {
			slog.Debug("trade_rejected", "error", err)
			rejected++
			continue
		}
		trades = append(trades, trade)
	}

	return trades, rejected, nil
}

// ParseActivityMessage parses a live feed message and returns trades if present.
func ParseActivityMessage(data []byte) ([]store.Trade, string, error) {
	var msg ActivityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if msg.Topic != "activity" || (msg.Type != "trades" && msg.Type != "orders_matched") {
		return nil, msg.Type, nil
	}

	if len(msg.Payload) == 0 {
		return nil, msg.Type, nil
	}

	var raw DataAPITrade
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		return nil, msg.Type, fmt.Errorf("failed to parse trade payload: %w", err)
	}

	trade, err := ConvertTrade(raw)
	if err != nil {
		return nil, msg.Type, err
	}

	return []store.Trade{trade}, msg.Type, nil
}

// ConvertTrade converts a feed record to store.Trade and validates it.
func ConvertTrade(r DataAPITrade) (store.Trade, error) {
	trade := store.Trade{
		ID:         tradeID(r),
		Timestamp:  parseUnix(r.Timestamp),
		MarketID:   r.ConditionID,
		Market:     coalesce(r.Title, "Unknown Market"),
		MarketSlug: r.Slug,
		Side:       deriveSide(r.Outcome, r.OutcomeIndex),
		Outcome:    r.Outcome,
		Direction:  parseDirection(r.Side),
		Size:       r.Size.InexactFloat64(),
		Price:      r.Price.InexactFloat64(),
		Wallet:     strings.ToLower(r.ProxyWallet),
		TxHash:     r.TransactionHash,
	}

	if trade.Outcome == "" {
		trade.Outcome = string(trade.Side)
	}

	if err := store.ValidateTrade(trade); err != nil {
		return store.Trade{}, err
	}

	return trade, nil
}

// IsInvalidTrade reports whether err is a validation failure.
func IsInvalidTrade(err error) bool {
	var invalid *store.InvalidTradeError
	return errors.As(err, &invalid)
}

// tradeID prefers the transaction hash, falling back to wallet and time.
func tradeID(r DataAPITrade) string {
	if r.TransactionHash != "" {
		if r.Asset != "" {
			return r.TransactionHash + ":" + r.Asset
		}
		return r.TransactionHash
	}
	return fmt.Sprintf("%s-%d", r.ProxyWallet, r.Timestamp)
}

// deriveSide maps an outcome label to YES/NO. Index 0 is the YES outcome
// on binary markets.
func deriveSide(outcome string, index int) store.Side {
	label := strings.ToLower(strings.TrimSpace(outcome))
	switch {
	case strings.Contains(label, "yes"):
		return store.SideYes
	case label == "no":
		return store.SideNo
	case index == 0:
		return store.SideYes
	}
	return store.SideNo
}

// parseDirection normalizes the feed's BUY/SELL label. Anything else is
// left empty.
func parseDirection(side string) store.Direction {
	switch store.Direction(strings.ToUpper(strings.TrimSpace(side))) {
	case store.DirectionBuy:
		return store.DirectionBuy
	case store.DirectionSell:
		return store.DirectionSell
	}
	return ""
}

// parseUnix accepts seconds or milliseconds.
func parseUnix(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	if ts > 1e12 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
