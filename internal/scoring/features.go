package scoring

import (
	"math"
	"strings"
	"time"
)

// Fallback scores used when an input is unknown.
const (
	TimingUnknown       = 30
	WinRateInsufficient = 50
	SpecializationNone  = 50
	SpecializationSolo  = 80
	SpecializationFocus = 90

	// MinResolvedForWinRate is the sample size below which win rate is not scored.
	MinResolvedForWinRate = 3
	// MinResolvedForPerfect is the sample size needed for the top win-rate bucket.
	MinResolvedForPerfect = 5
	// MinMarketsForFocus is the market count at which single-category wallets score as focused.
	MinMarketsForFocus = 3
)

const day = 24 * time.Hour

// WalletAgeDays returns whole days since firstSeen, never less than 1.
func WalletAgeDays(firstSeen, now time.Time) int {
	days := int(math.Floor(float64(now.Sub(firstSeen)) / float64(day)))
	if days < 1 {
		return 1
	}
	return days
}

// Newness scores how recently the wallet first appeared.
func Newness(ageDays int) int {
	return NewnessTable.Lookup(float64(ageDays))
}

// Concentration scores how much of the wallet's total volume this trade is.
// A zero cumulative volume means this is the first trade and counts as 1.0.
func Concentration(notional, cumulativeVolume float64) int {
	ratio := 1.0
	if cumulativeVolume > 0 {
		ratio = notional / cumulativeVolume
	}
	return ConcentrationTable.Lookup(ratio)
}

// Timing scores proximity of the trade to market resolution.
func Timing(tradeAt time.Time, endDate *time.Time) int {
	if endDate == nil {
		return TimingUnknown
	}
	hours := endDate.Sub(tradeAt).Hours()
	if hours < 0 {
		return TimingTable.Else
	}
	return TimingTable.Lookup(hours)
}

// SizeVsLiquidity scores the trade against the market's depth. The reference
// is the smaller of liquidity and 24h volume; a single known value is used
// alone, and with neither the absolute notional is scored instead.
func SizeVsLiquidity(notional float64, liquidity, volume24h *float64) int {
	reference, ok := liquidityReference(liquidity, volume24h)
	if !ok {
		return AbsoluteSizeTable.Lookup(notional)
	}
	return LiquidityRatioTable.Lookup(notional / reference)
}

func liquidityReference(liquidity, volume24h *float64) (float64, bool) {
	usable := func(v *float64) bool {
		return v != nil && *v > 0 && !math.IsInf(*v, 0) && !math.IsNaN(*v)
	}

	switch {
	case usable(liquidity) && usable(volume24h):
		return math.Min(*liquidity, *volume24h), true
	case usable(liquidity):
		return *liquidity, true
	case usable(volume24h):
		return *volume24h, true
	}
	return 0, false
}

// WinRate scores the wallet's record on resolved positions.
func WinRate(wins, total int) int {
	if total < MinResolvedForWinRate {
		return WinRateInsufficient
	}
	rate := float64(wins) / float64(total)
	if rate >= 0.95 && total >= MinResolvedForPerfect {
		return 100
	}
	return WinRateTable.Lookup(rate)
}

// Specialization scores how narrowly the wallet trades across categories.
func Specialization(totalMarkets int, categories []string) int {
	if totalMarkets <= 1 {
		return SpecializationSolo
	}

	unique := uniqueCategories(categories)
	if unique == 0 {
		return SpecializationNone
	}
	if unique == 1 && totalMarkets >= MinMarketsForFocus {
		return SpecializationFocus
	}
	return SpecializationTable.Lookup(float64(unique) / float64(totalMarkets))
}

func uniqueCategories(categories []string) int {
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		seen[c] = struct{}{}
	}
	return len(seen)
}
