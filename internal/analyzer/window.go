package analyzer

import (
	"sync"

	"github.com/polyinsider/scorer/internal/scoring"
	"github.com/polyinsider/scorer/internal/store"
)

// DefaultHighScoreThreshold is the composite at which a trade counts as high-score.
const DefaultHighScoreThreshold = 60

// Stats summarizes the trades currently held in a ResultWindow.
type Stats struct {
	TotalAnalyzed  int     `json:"totalAnalyzed"`
	HighScoreCount int     `json:"highScoreCount"`
	TotalVolume    float64 `json:"totalVolume"`
	MarketsTracked int     `json:"marketsTracked"`
}

// ResultWindow keeps the most recent analyzed trades, one entry per trade ID.
type ResultWindow struct {
	mu        sync.RWMutex
	capacity  int
	threshold int
	order     []string
	byID      map[string]store.AnalyzedTrade
}

// NewResultWindow creates a window holding at most capacity trades.
func NewResultWindow(capacity, highScoreThreshold int) *ResultWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &ResultWindow{
		capacity:  capacity,
		threshold: highScoreThreshold,
		byID:      make(map[string]store.AnalyzedTrade, capacity),
	}
}

// Add inserts results. A trade already present is replaced in place;
// new trades evict the oldest once the window is full.
func (w *ResultWindow) Add(results ...store.AnalyzedTrade) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range results {
		if _, ok := w.byID[r.ID]; ok {
			w.byID[r.ID] = r
			continue
		}

		w.byID[r.ID] = r
		w.order = append(w.order, r.ID)
		if len(w.order) > w.capacity {
			delete(w.byID, w.order[0])
			w.order = w.order[1:]
		}
	}
}

// Len returns the number of trades held.
func (w *ResultWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.order)
}

// Ranked returns up to limit trades by composite descending. Among equal
// composites the most recently added comes first. limit <= 0 returns all.
func (w *ResultWindow) Ranked(limit int) []store.AnalyzedTrade {
	w.mu.RLock()
	newest := make([]store.AnalyzedTrade, 0, len(w.order))
	for i := len(w.order) - 1; i >= 0; i-- {
		newest = append(newest, w.byID[w.order[i]])
	}
	w.mu.RUnlock()

	ranked := scoring.Rank(newest)
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	return ranked
}

// Stats computes summary figures over the window.
func (w *ResultWindow) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	markets := make(store.MarketSet)
	stats := Stats{TotalAnalyzed: len(w.order)}
	for _, id := range w.order {
		r := w.byID[id]
		if r.InsiderScore >= w.threshold {
			stats.HighScoreCount++
		}
		stats.TotalVolume += r.Notional()
		markets.Add(r.MarketID)
	}
	stats.MarketsTracked = len(markets)

	return stats
}
