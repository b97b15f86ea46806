// Package store provides data models and wallet history storage.
package store

import (
	"encoding/json"
	"sort"
	"time"
)

// Side is the outcome a trade was placed on.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Direction is whether the taker bought or sold the outcome.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Trade represents a single trade on a prediction market.
type Trade struct {
	// ID is a unique identifier for this trade record
	ID string `json:"id"`

	// Timestamp is when the trade occurred
	Timestamp time.Time `json:"timestamp"`

	// MarketID is the condition ID used for distinct-market accounting
	MarketID string `json:"conditionId"`

	// Market is the display title of the market
	Market string `json:"market"`

	// MarketSlug is the URL slug of the market (may be empty)
	MarketSlug string `json:"marketSlug"`

	// Side is YES or NO
	Side Side `json:"side"`

	// Outcome is the raw outcome label reported by the feed
	Outcome string `json:"outcome,omitempty"`

	// Direction is BUY or SELL of the outcome; empty when the feed omits it
	Direction Direction `json:"direction,omitempty"`

	// Size is the number of shares traded
	Size float64 `json:"size"`

	// Price is the execution price (0-1 range for prediction markets)
	Price float64 `json:"price"`

	// Wallet is the trader's address
	Wallet string `json:"wallet"`

	// TxHash is the on-chain transaction hash (if available)
	TxHash string `json:"txHash,omitempty"`
}

// Notional is the USD value at risk: size * price.
func (t Trade) Notional() float64 {
	return t.Size * t.Price
}

// MarketSet is a set of market identifiers. It serializes as a sorted array.
type MarketSet map[string]struct{}

// Add inserts a market id.
func (m MarketSet) Add(id string) {
	m[id] = struct{}{}
}

// Has reports whether id is in the set.
func (m MarketSet) Has(id string) bool {
	_, ok := m[id]
	return ok
}

// Sorted returns the ids in lexical order.
func (m MarketSet) Sorted() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy.
func (m MarketSet) Clone() MarketSet {
	out := make(MarketSet, len(m))
	for id := range m {
		out[id] = struct{}{}
	}
	return out
}

func (m MarketSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Sorted())
}

func (m *MarketSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	set := make(MarketSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	*m = set
	return nil
}

// WalletHistory is the running per-wallet aggregate built from observed trades.
// The JSON shape is the persisted format and must keep exactly these four fields.
type WalletHistory struct {
	FirstSeenAt      time.Time `json:"firstSeenAt"`
	TradeCount       int       `json:"tradeCount"`
	DistinctMarkets  MarketSet `json:"distinctMarkets"`
	CumulativeVolume float64   `json:"cumulativeVolume"`
}

// NewWalletHistory starts a history from the wallet's first observed trade.
func NewWalletHistory(trade Trade) WalletHistory {
	markets := make(MarketSet, 1)
	markets.Add(trade.MarketID)
	return WalletHistory{
		FirstSeenAt:      trade.Timestamp,
		TradeCount:       1,
		DistinctMarkets:  markets,
		CumulativeVolume: trade.Notional(),
	}
}

// Apply accumulates one more trade. Out-of-order trades never move
// FirstSeenAt forward.
func (h *WalletHistory) Apply(trade Trade) {
	if h.DistinctMarkets == nil {
		h.DistinctMarkets = make(MarketSet)
	}
	h.TradeCount++
	h.DistinctMarkets.Add(trade.MarketID)
	h.CumulativeVolume += trade.Notional()
	if trade.Timestamp.Before(h.FirstSeenAt) {
		h.FirstSeenAt = trade.Timestamp
	}
}

// Clone returns a deep copy safe to hand to callers.
func (h WalletHistory) Clone() WalletHistory {
	h.DistinctMarkets = h.DistinctMarkets.Clone()
	return h
}

// MarketInfo is best-effort metadata about a single market.
type MarketInfo struct {
	ConditionID string
	Question    string
	EndDate     *time.Time
	Liquidity   *float64
	Volume24h   *float64
	Category    string

	// Resolved is set once the market has settled; WinningSide is only
	// meaningful when Resolved is true.
	Resolved    bool
	WinningSide Side
}

// MarketContext is the optional, possibly incomplete context for one scoring call.
// Nil pointers and zero counts mean "unknown".
type MarketContext struct {
	EndDate               *time.Time
	Liquidity             *float64
	Rolling24hVolume      *float64
	Categories            []string
	TotalMarketsForWallet int
	ResolvedWins          int
	ResolvedTotal         int
}

// InsiderScores holds the six sub-scores and the weighted composite, each in [0,100].
type InsiderScores struct {
	Newness         int `json:"newness"`
	Concentration   int `json:"concentration"`
	Timing          int `json:"timing"`
	SizeVsLiquidity int `json:"sizeVsLiquidity"`
	WinRate         int `json:"winRate"`
	Specialization  int `json:"specialization"`
	Composite       int `json:"composite"`
}

// Severity is the coarse classification of a composite score.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// AnalyzedTrade is a trade joined with its scores and wallet summary.
type AnalyzedTrade struct {
	Trade
	InsiderScore          int           `json:"insiderScore"`
	Scores                InsiderScores `json:"scores"`
	Severity              Severity      `json:"severity"`
	WalletAgeDays         int           `json:"walletAge"`
	MarketsTradedByWallet int           `json:"marketsTraded"`
}
