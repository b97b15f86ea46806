package scoring

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyinsider/scorer/internal/store"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T {
	return &v
}

func TestNewnessBoundaries(t *testing.T) {
	cases := map[int]int{
		1: 100, 3: 100, 4: 90, 7: 90, 8: 70, 14: 70, 15: 50,
		30: 50, 31: 30, 90: 30, 91: 15, 180: 15, 181: 5, 5000: 5,
	}
	for age, want := range cases {
		assert.Equal(t, want, Newness(age), "age %d", age)
	}
}

func TestWalletAgeDays(t *testing.T) {
	assert.Equal(t, 1, WalletAgeDays(now, now))
	assert.Equal(t, 1, WalletAgeDays(now.Add(-30*time.Hour), now))
	assert.Equal(t, 2, WalletAgeDays(now.Add(-48*time.Hour), now))
	assert.Equal(t, 2, WalletAgeDays(now.Add(-71*time.Hour), now))
	// A first-seen time in the future is still at least one day.
	assert.Equal(t, 1, WalletAgeDays(now.Add(time.Hour), now))
}

func TestConcentrationBoundaries(t *testing.T) {
	assert.Equal(t, 100, Concentration(95, 100))
	assert.Equal(t, 85, Concentration(94.99, 100))
	assert.Equal(t, 85, Concentration(80, 100))
	assert.Equal(t, 65, Concentration(60, 100))
	assert.Equal(t, 45, Concentration(40, 100))
	assert.Equal(t, 25, Concentration(20, 100))
	assert.Equal(t, 10, Concentration(19.9, 100))
	assert.Equal(t, 10, Concentration(0, 100))

	// First-ever trade: nothing accumulated yet.
	assert.Equal(t, 100, Concentration(500, 0))
	assert.Equal(t, 100, Concentration(0, 0))
}

func TestTiming(t *testing.T) {
	at := now
	end := func(d time.Duration) *time.Time { return ptr(at.Add(d)) }

	assert.Equal(t, TimingUnknown, Timing(at, nil))
	assert.Equal(t, 10, Timing(at, end(-time.Minute)))
	assert.Equal(t, 100, Timing(at, end(0)))
	assert.Equal(t, 100, Timing(at, end(6*time.Hour)))
	assert.Equal(t, 90, Timing(at, end(6*time.Hour+time.Second)))
	assert.Equal(t, 90, Timing(at, end(24*time.Hour)))
	assert.Equal(t, 75, Timing(at, end(48*time.Hour)))
	assert.Equal(t, 60, Timing(at, end(72*time.Hour)))
	assert.Equal(t, 40, Timing(at, end(168*time.Hour)))
	assert.Equal(t, 20, Timing(at, end(720*time.Hour)))
	assert.Equal(t, 10, Timing(at, end(721*time.Hour)))
}

func TestSizeVsLiquidity(t *testing.T) {
	t.Run("absolute when no context", func(t *testing.T) {
		assert.Equal(t, 90, SizeVsLiquidity(50000, nil, nil))
		assert.Equal(t, 70, SizeVsLiquidity(25000, nil, nil))
		assert.Equal(t, 50, SizeVsLiquidity(20000, nil, nil))
		assert.Equal(t, 30, SizeVsLiquidity(5000, nil, nil))
		assert.Equal(t, 15, SizeVsLiquidity(4999, nil, nil))
	})

	t.Run("minimum of liquidity and volume", func(t *testing.T) {
		assert.Equal(t, 100, SizeVsLiquidity(10000, ptr(100000.0), ptr(50000.0)))
		assert.Equal(t, 85, SizeVsLiquidity(5000, ptr(100000.0), ptr(50000.0)))
		assert.Equal(t, 65, SizeVsLiquidity(2500, ptr(50000.0), ptr(100000.0)))
		assert.Equal(t, 45, SizeVsLiquidity(1000, ptr(50000.0), ptr(100000.0)))
		assert.Equal(t, 30, SizeVsLiquidity(500, ptr(50000.0), ptr(100000.0)))
		assert.Equal(t, 15, SizeVsLiquidity(100, ptr(50000.0), ptr(100000.0)))
	})

	t.Run("single reference", func(t *testing.T) {
		assert.Equal(t, 45, SizeVsLiquidity(20000, ptr(1000000.0), nil))
		assert.Equal(t, 100, SizeVsLiquidity(20000, nil, ptr(100000.0)))
	})

	t.Run("non-positive reference is unknown", func(t *testing.T) {
		assert.Equal(t, 50, SizeVsLiquidity(20000, ptr(0.0), nil))
		assert.Equal(t, 100, SizeVsLiquidity(20000, ptr(0.0), ptr(100000.0)))
	})
}

func TestWinRate(t *testing.T) {
	assert.Equal(t, 50, WinRate(0, 0))
	assert.Equal(t, 50, WinRate(2, 2))
	assert.Equal(t, 100, WinRate(5, 5))
	assert.Equal(t, 100, WinRate(19, 20))
	// Perfect record but too few positions for the top bucket.
	assert.Equal(t, 85, WinRate(3, 3))
	assert.Equal(t, 85, WinRate(4, 4))
	assert.Equal(t, 85, WinRate(17, 20))
	assert.Equal(t, 70, WinRate(3, 4))
	assert.Equal(t, 55, WinRate(13, 20))
	assert.Equal(t, 40, WinRate(11, 20))
	assert.Equal(t, 25, WinRate(1, 4))
}

func TestSpecialization(t *testing.T) {
	assert.Equal(t, 80, Specialization(0, nil))
	assert.Equal(t, 80, Specialization(1, []string{"politics", "sports"}))
	assert.Equal(t, 50, Specialization(5, nil))
	assert.Equal(t, 50, Specialization(5, []string{"", "  "}))
	assert.Equal(t, 90, Specialization(3, []string{"Politics", "politics"}))
	assert.Equal(t, 30, Specialization(2, []string{"politics"}))
	assert.Equal(t, 75, Specialization(10, []string{"a", "b"}))
	assert.Equal(t, 50, Specialization(5, []string{"a", "b"}))
	assert.Equal(t, 30, Specialization(5, []string{"a", "b", "c"}))
	assert.Equal(t, 15, Specialization(4, []string{"a", "b", "c"}))
}

func TestCompositeAndSeverity(t *testing.T) {
	all := func(v int) store.InsiderScores {
		return store.InsiderScores{
			Newness: v, Concentration: v, Timing: v,
			SizeVsLiquidity: v, WinRate: v, Specialization: v,
		}
	}
	assert.Equal(t, 100, Composite(all(100)))
	assert.Equal(t, 0, Composite(all(0)))
	assert.Equal(t, 37, Composite(all(37)))

	assert.Equal(t, store.SeverityCritical, Classify(80))
	assert.Equal(t, store.SeverityHigh, Classify(79))
	assert.Equal(t, store.SeverityHigh, Classify(60))
	assert.Equal(t, store.SeverityMedium, Classify(59))
	assert.Equal(t, store.SeverityMedium, Classify(40))
	assert.Equal(t, store.SeverityLow, Classify(39))
	assert.Equal(t, store.SeverityLow, Classify(0))
}

func TestScore_FreshWalletFirstTrade(t *testing.T) {
	scorer := NewScorer(WithClock(func() time.Time { return now }))

	trade := store.Trade{
		ID:        "t1",
		Timestamp: now.Add(-time.Hour),
		MarketID:  "m1",
		Side:      store.SideYes,
		Size:      40000,
		Price:     0.5,
		Wallet:    "0xfresh",
	}
	history := store.WalletHistory{
		FirstSeenAt:      now.Add(-48 * time.Hour),
		TradeCount:       1,
		DistinctMarkets:  store.MarketSet{"m1": {}},
		CumulativeVolume: 20000,
	}

	scores := scorer.Score(trade, history, nil)

	assert.Equal(t, store.InsiderScores{
		Newness:         100,
		Concentration:   100,
		Timing:          30,
		SizeVsLiquidity: 50,
		WinRate:         50,
		Specialization:  80,
		// 20 + 25 + 4.5 + 7.5 + 7.5 + 8 = 72.5, rounded half away from zero.
		Composite: 73,
	}, scores)

	analyzed := scorer.Analyze(trade, history, nil)
	assert.Equal(t, 73, analyzed.InsiderScore)
	assert.Equal(t, store.SeverityHigh, analyzed.Severity)
	assert.Equal(t, 2, analyzed.WalletAgeDays)
	assert.Equal(t, 1, analyzed.MarketsTradedByWallet)
}

func TestScore_UsesMarketContext(t *testing.T) {
	trade := store.Trade{
		Timestamp: now,
		MarketID:  "m1",
		Size:      10000,
		Price:     0.5,
	}
	history := store.WalletHistory{
		FirstSeenAt:      now.Add(-400 * day),
		TradeCount:       10,
		DistinctMarkets:  store.MarketSet{"m1": {}, "m2": {}, "m3": {}},
		CumulativeVolume: 100000,
	}
	mc := &store.MarketContext{
		EndDate:               ptr(now.Add(3 * time.Hour)),
		Liquidity:             ptr(40000.0),
		Rolling24hVolume:      ptr(80000.0),
		Categories:            []string{"crypto"},
		TotalMarketsForWallet: 3,
		ResolvedWins:          5,
		ResolvedTotal:         5,
	}

	scores := ScoreAt(trade, history, mc, now)

	assert.Equal(t, 5, scores.Newness)
	assert.Equal(t, 10, scores.Concentration)
	assert.Equal(t, 100, scores.Timing)
	assert.Equal(t, 85, scores.SizeVsLiquidity)
	assert.Equal(t, 100, scores.WinRate)
	assert.Equal(t, 90, scores.Specialization)
	// 1 + 2.5 + 15 + 12.75 + 15 + 9 = 55.25
	assert.Equal(t, 55, scores.Composite)
}

func TestScore_TotalMarketsFallsBackToHistory(t *testing.T) {
	trade := store.Trade{Timestamp: now, MarketID: "m1", Size: 1, Price: 0.5}
	history := store.WalletHistory{
		FirstSeenAt:      now,
		TradeCount:       4,
		DistinctMarkets:  store.MarketSet{"m1": {}, "m2": {}, "m3": {}},
		CumulativeVolume: 10,
	}

	scores := ScoreAt(trade, history, &store.MarketContext{Categories: []string{"sports"}}, now)
	assert.Equal(t, SpecializationFocus, scores.Specialization)
}

func randomInputs(r *rand.Rand) (store.Trade, store.WalletHistory, *store.MarketContext) {
	trade := store.Trade{
		ID:        "r",
		Timestamp: now.Add(-time.Duration(r.Intn(1000)) * time.Hour),
		MarketID:  "m",
		Size:      r.Float64() * 200000,
		Price:     r.Float64(),
	}
	history := store.WalletHistory{
		FirstSeenAt:      now.Add(-time.Duration(r.Intn(500*24)) * time.Hour),
		TradeCount:       1 + r.Intn(50),
		DistinctMarkets:  store.MarketSet{"m": {}},
		CumulativeVolume: r.Float64() * 500000,
	}

	var mc *store.MarketContext
	if r.Intn(3) > 0 {
		total := r.Intn(30)
		mc = &store.MarketContext{
			TotalMarketsForWallet: r.Intn(40),
			ResolvedTotal:         total,
			ResolvedWins:          r.Intn(total + 1),
			Categories:            []string{"a", "b", "c"}[:r.Intn(4)],
		}
		if r.Intn(2) == 0 {
			mc.EndDate = ptr(now.Add(time.Duration(r.Intn(2000)-500) * time.Hour))
		}
		if r.Intn(2) == 0 {
			mc.Liquidity = ptr(r.Float64() * 1e6)
		}
		if r.Intn(2) == 0 {
			mc.Rolling24hVolume = ptr(r.Float64() * 1e6)
		}
	}
	return trade, history, mc
}

func TestScore_RangeAndPurity(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	scorer := NewScorer(WithClock(func() time.Time { return now }))

	for i := 0; i < 2000; i++ {
		trade, history, mc := randomInputs(r)

		first := scorer.Score(trade, history, mc)
		second := scorer.Score(trade, history, mc)
		require.Equal(t, first, second, "score must be deterministic")

		for _, v := range []int{
			first.Newness, first.Concentration, first.Timing,
			first.SizeVsLiquidity, first.WinRate, first.Specialization, first.Composite,
		} {
			require.GreaterOrEqual(t, v, 0)
			require.LessOrEqual(t, v, 100)
		}
	}
}

func TestMonotonicity(t *testing.T) {
	prev := Newness(1)
	for age := 2; age <= 400; age++ {
		cur := Newness(age)
		assert.LessOrEqual(t, cur, prev, "newness increased at age %d", age)
		prev = cur
	}

	prev = Concentration(0, 100)
	for n := 1; n <= 120; n++ {
		cur := Concentration(float64(n), 100)
		assert.GreaterOrEqual(t, cur, prev, "concentration decreased at ratio %d%%", n)
		prev = cur
	}

	prev = Timing(now, ptr(now.Add(1000*time.Hour)))
	for h := 999; h >= 0; h-- {
		cur := Timing(now, ptr(now.Add(time.Duration(h)*time.Hour)))
		assert.GreaterOrEqual(t, cur, prev, "timing decreased at %dh", h)
		prev = cur
	}
}

func TestRankIsStable(t *testing.T) {
	input := []store.AnalyzedTrade{
		{Trade: store.Trade{ID: "a"}, Scores: store.InsiderScores{Composite: 40}},
		{Trade: store.Trade{ID: "b"}, Scores: store.InsiderScores{Composite: 90}},
		{Trade: store.Trade{ID: "c"}, Scores: store.InsiderScores{Composite: 90}},
		{Trade: store.Trade{ID: "d"}, Scores: store.InsiderScores{Composite: 10}},
	}

	ranked := Rank(input)

	ids := make([]string, len(ranked))
	for i, tr := range ranked {
		ids[i] = tr.ID
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
	// Input is untouched.
	assert.Equal(t, "a", input[0].ID)
}

func TestTableLookup(t *testing.T) {
	table := Table{Dir: AtLeast, Buckets: []Bucket{{10, 3}, {5, 2}}, Else: 1}
	assert.Equal(t, 3, table.Lookup(10))
	assert.Equal(t, 2, table.Lookup(9.99))
	assert.Equal(t, 1, table.Lookup(4))

	asc := Table{Dir: AtMost, Buckets: []Bucket{{1, 9}, {2, 8}}, Else: 7}
	assert.Equal(t, 9, asc.Lookup(1))
	assert.Equal(t, 8, asc.Lookup(1.5))
	assert.Equal(t, 7, asc.Lookup(2.01))
}
