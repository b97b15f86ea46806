package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testTrade(id, market string, size, price float64, at time.Time) Trade {
	return Trade{
		ID:        id,
		Timestamp: at,
		MarketID:  market,
		Market:    "Market " + market,
		Side:      SideYes,
		Size:      size,
		Price:     price,
		Wallet:    "0xabc",
	}
}

func TestMemoryStore_FirstObservation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	h, err := s.Observe(ctx, "0xabc", testTrade("t1", "m1", 1000, 0.4, baseTime))
	require.NoError(t, err)

	assert.Equal(t, baseTime, h.FirstSeenAt)
	assert.Equal(t, 1, h.TradeCount)
	assert.Equal(t, []string{"m1"}, h.DistinctMarkets.Sorted())
	assert.InDelta(t, 400.0, h.CumulativeVolume, 1e-9)
}

func TestMemoryStore_Accumulates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Observe(ctx, "0xabc", testTrade("t1", "m1", 100, 0.5, baseTime))
	require.NoError(t, err)
	_, err = s.Observe(ctx, "0xabc", testTrade("t2", "m1", 200, 0.25, baseTime.Add(time.Hour)))
	require.NoError(t, err)
	h, err := s.Observe(ctx, "0xabc", testTrade("t3", "m2", 10, 1, baseTime.Add(2*time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, 3, h.TradeCount)
	assert.Equal(t, []string{"m1", "m2"}, h.DistinctMarkets.Sorted())
	assert.InDelta(t, 110.0, h.CumulativeVolume, 1e-9)
	assert.Equal(t, baseTime, h.FirstSeenAt)
}

func TestMemoryStore_OutOfOrderKeepsEarliest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	t1 := baseTime
	t2 := baseTime.Add(48 * time.Hour)

	_, err := s.Observe(ctx, "0xabc", testTrade("late", "m1", 1, 0.5, t2))
	require.NoError(t, err)
	h, err := s.Observe(ctx, "0xabc", testTrade("early", "m1", 1, 0.5, t1))
	require.NoError(t, err)

	assert.Equal(t, t1, h.FirstSeenAt)

	// A later trade must not move it forward again.
	h, err = s.Observe(ctx, "0xabc", testTrade("later", "m1", 1, 0.5, t2.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, t1, h.FirstSeenAt)
}

func TestMemoryStore_DistinctMarketsNeverExceedTradeCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	markets := []string{"a", "b", "a", "a", "c", "b", "d", "a"}

	for i, m := range markets {
		h, err := s.Observe(ctx, "0xabc", testTrade(fmt.Sprintf("t%d", i), m, 5, 0.5, baseTime))
		require.NoError(t, err)
		assert.LessOrEqual(t, len(h.DistinctMarkets), h.TradeCount)
	}
}

func TestMemoryStore_SnapshotIsIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	h, err := s.Observe(ctx, "0xabc", testTrade("t1", "m1", 1, 0.5, baseTime))
	require.NoError(t, err)
	h.DistinctMarkets.Add("tampered")
	h.TradeCount = 99

	got, err := s.Get(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TradeCount)
	assert.False(t, got.DistinctMarkets.Has("tampered"))
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "0xnobody")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestMemoryStore_ConcurrentSameWallet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			trade := testTrade(fmt.Sprintf("t%d", i), fmt.Sprintf("m%d", i%7), 10, 0.5, baseTime.Add(time.Duration(i)*time.Minute))
			if _, err := s.Observe(ctx, "0xabc", trade); err != nil {
				t.Errorf("observe failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	h, err := s.Get(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, n, h.TradeCount)
	assert.Len(t, h.DistinctMarkets, 7)
	assert.InDelta(t, n*5.0, h.CumulativeVolume, 1e-6)
	assert.Equal(t, baseTime, h.FirstSeenAt)

	count, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Observe(ctx, "0xabc", testTrade("t1", "m1", 1, 0.5, baseTime))
	assert.ErrorIs(t, err, context.Canceled)
}
