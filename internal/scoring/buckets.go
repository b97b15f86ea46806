// Package scoring computes insider-likelihood scores for individual trades.
package scoring

// Direction selects how a Table compares an input against its bounds.
type Direction int

const (
	// AtMost matches the first bucket whose bound is >= x (ascending bounds).
	AtMost Direction = iota
	// AtLeast matches the first bucket whose bound is <= x (descending bounds).
	AtLeast
)

// Bucket maps a bound to a score.
type Bucket struct {
	Bound float64
	Value int
}

// Table is an ordered threshold table: evaluated top-down, first match wins,
// Else applies when nothing matches.
type Table struct {
	Dir     Direction
	Buckets []Bucket
	Else    int
}

// Lookup returns the score for x.
func (t Table) Lookup(x float64) int {
	for _, b := range t.Buckets {
		switch t.Dir {
		case AtMost:
			if x <= b.Bound {
				return b.Value
			}
		case AtLeast:
			if x >= b.Bound {
				return b.Value
			}
		}
	}
	return t.Else
}

// Threshold tables. Tuned by hand; changing any bound changes every score.
var (
	// NewnessTable is keyed by wallet age in whole days.
	NewnessTable = Table{
		Dir: AtMost,
		Buckets: []Bucket{
			{3, 100}, {7, 90}, {14, 70}, {30, 50}, {90, 30}, {180, 15},
		},
		Else: 5,
	}

	// ConcentrationTable is keyed by trade notional / wallet cumulative volume.
	ConcentrationTable = Table{
		Dir: AtLeast,
		Buckets: []Bucket{
			{0.95, 100}, {0.80, 85}, {0.60, 65}, {0.40, 45}, {0.20, 25},
		},
		Else: 10,
	}

	// TimingTable is keyed by non-negative hours until market end.
	TimingTable = Table{
		Dir: AtMost,
		Buckets: []Bucket{
			{6, 100}, {24, 90}, {48, 75}, {72, 60}, {168, 40}, {720, 20},
		},
		Else: 10,
	}

	// LiquidityRatioTable is keyed by trade notional / min(liquidity, 24h volume).
	LiquidityRatioTable = Table{
		Dir: AtLeast,
		Buckets: []Bucket{
			{0.20, 100}, {0.10, 85}, {0.05, 65}, {0.02, 45}, {0.01, 30},
		},
		Else: 15,
	}

	// AbsoluteSizeTable is keyed by trade notional in USD when no liquidity data exists.
	AbsoluteSizeTable = Table{
		Dir: AtLeast,
		Buckets: []Bucket{
			{50000, 90}, {25000, 70}, {10000, 50}, {5000, 30},
		},
		Else: 15,
	}

	// WinRateTable is keyed by resolved wins / resolved total. The top
	// bucket (0.95 -> 100) additionally needs five resolved positions and is
	// handled in WinRate.
	WinRateTable = Table{
		Dir: AtLeast,
		Buckets: []Bucket{
			{0.85, 85}, {0.75, 70}, {0.65, 55}, {0.55, 40},
		},
		Else: 25,
	}

	// SpecializationTable is keyed by unique categories / markets traded.
	SpecializationTable = Table{
		Dir: AtMost,
		Buckets: []Bucket{
			{0.2, 75}, {0.4, 50}, {0.6, 30},
		},
		Else: 15,
	}
)
