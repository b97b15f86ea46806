package scoring

import (
	"sort"
	"time"

	"github.com/polyinsider/scorer/internal/store"
)

// Analyze scores a trade and joins the result with the wallet summary.
func (s *Scorer) Analyze(trade store.Trade, history store.WalletHistory, mc *store.MarketContext) store.AnalyzedTrade {
	return AnalyzeAt(trade, history, mc, s.now())
}

// AnalyzeAt is Analyze with an explicit clock reading.
func AnalyzeAt(trade store.Trade, history store.WalletHistory, mc *store.MarketContext, now time.Time) store.AnalyzedTrade {
	scores := ScoreAt(trade, history, mc, now)
	return store.AnalyzedTrade{
		Trade:                 trade,
		InsiderScore:          scores.Composite,
		Scores:                scores,
		Severity:              Classify(scores.Composite),
		WalletAgeDays:         WalletAgeDays(history.FirstSeenAt, now),
		MarketsTradedByWallet: len(history.DistinctMarkets),
	}
}

// Rank returns a copy ordered by composite descending. Equal composites keep
// their input order.
func Rank(trades []store.AnalyzedTrade) []store.AnalyzedTrade {
	ranked := make([]store.AnalyzedTrade, len(trades))
	copy(ranked, trades)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Scores.Composite > ranked[j].Scores.Composite
	})
	return ranked
}
