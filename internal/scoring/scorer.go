package scoring

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyinsider/scorer/internal/store"
)

// Composite weights. They sum to exactly 1.00.
var (
	WeightNewness         = decimal.RequireFromString("0.20")
	WeightConcentration   = decimal.RequireFromString("0.25")
	WeightTiming          = decimal.RequireFromString("0.15")
	WeightSizeVsLiquidity = decimal.RequireFromString("0.15")
	WeightWinRate         = decimal.RequireFromString("0.15")
	WeightSpecialization  = decimal.RequireFromString("0.10")
)

// Scorer turns a trade and its wallet history into InsiderScores.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	now func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock sets the clock used to compute wallet age.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

// NewScorer creates a Scorer using time.Now unless overridden.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the scorer's current clock reading.
func (s *Scorer) Now() time.Time {
	return s.now()
}

// Score computes all sub-scores and the composite. mc may be nil.
// The history is expected to already include the trade being scored.
func (s *Scorer) Score(trade store.Trade, history store.WalletHistory, mc *store.MarketContext) store.InsiderScores {
	return ScoreAt(trade, history, mc, s.now())
}

// ScoreAt is Score with an explicit clock reading.
func ScoreAt(trade store.Trade, history store.WalletHistory, mc *store.MarketContext, now time.Time) store.InsiderScores {
	if mc == nil {
		mc = &store.MarketContext{}
	}

	notional := trade.Notional()

	totalMarkets := mc.TotalMarketsForWallet
	if totalMarkets <= 0 {
		totalMarkets = len(history.DistinctMarkets)
	}

	scores := store.InsiderScores{
		Newness:         clamp(Newness(WalletAgeDays(history.FirstSeenAt, now))),
		Concentration:   clamp(Concentration(notional, history.CumulativeVolume)),
		Timing:          clamp(Timing(trade.Timestamp, mc.EndDate)),
		SizeVsLiquidity: clamp(SizeVsLiquidity(notional, mc.Liquidity, mc.Rolling24hVolume)),
		WinRate:         clamp(WinRate(mc.ResolvedWins, mc.ResolvedTotal)),
		Specialization:  clamp(Specialization(totalMarkets, mc.Categories)),
	}
	scores.Composite = Composite(scores)
	return scores
}

// Composite returns the weighted sum of the six sub-scores rounded half away
// from zero (72.5 -> 73) and clamped to [0,100]. The sum is exact: only the
// final total is rounded.
func Composite(s store.InsiderScores) int {
	sum := weighted(s.Newness, WeightNewness).
		Add(weighted(s.Concentration, WeightConcentration)).
		Add(weighted(s.Timing, WeightTiming)).
		Add(weighted(s.SizeVsLiquidity, WeightSizeVsLiquidity)).
		Add(weighted(s.WinRate, WeightWinRate)).
		Add(weighted(s.Specialization, WeightSpecialization))

	return clamp(int(sum.Round(0).IntPart()))
}

func weighted(score int, weight decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(score)).Mul(weight)
}

// Classify maps a composite score to its severity.
func Classify(composite int) store.Severity {
	switch {
	case composite >= 80:
		return store.SeverityCritical
	case composite >= 60:
		return store.SeverityHigh
	case composite >= 40:
		return store.SeverityMedium
	default:
		return store.SeverityLow
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
