package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyinsider/scorer/internal/store"
)

const marketsFixture = `[
  {
    "id": "501",
    "question": "Will the merger close by June?",
    "conditionId": "0xc1",
    "slug": "merger-close",
    "endDate": "2026-06-30T12:00:00Z",
    "category": "Business",
    "active": true,
    "closed": false,
    "liquidityNum": 40000.5,
    "volume24hr": "1200",
    "outcomes": "[\"Yes\",\"No\"]",
    "outcomePrices": "[\"0.62\",\"0.38\"]"
  },
  {
    "id": "502",
    "question": "Settled market",
    "conditionId": "0xc2",
    "endDate": "not-a-date",
    "closed": true,
    "outcomes": "[\"Yes\",\"No\"]",
    "outcomePrices": "[\"0.0005\",\"0.9995\"]",
    "tags": [{"label": "Politics"}, {"label": "US"}]
  }
]`

func newGammaServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	var markets []GammaMarket
	require.NoError(t, json.Unmarshal([]byte(marketsFixture), &markets))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/markets", r.URL.Path)

		out := markets
		if id := r.URL.Query().Get("condition_ids"); id != "" {
			out = nil
			for _, m := range markets {
				if m.ConditionID == id {
					out = append(out, m)
				}
			}
		}
		if out == nil {
			out = []GammaMarket{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGammaClient_MarketInfo(t *testing.T) {
	var hits atomic.Int32
	srv := newGammaServer(t, &hits)
	g := NewGammaClient(srv.URL, time.Minute)

	info, err := g.MarketInfo(context.Background(), "0xc1")
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "0xc1", info.ConditionID)
	assert.Equal(t, "Business", info.Category)
	require.NotNil(t, info.EndDate)
	assert.Equal(t, time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC), info.EndDate.UTC())
	require.NotNil(t, info.Liquidity)
	assert.InDelta(t, 40000.5, *info.Liquidity, 1e-9)
	require.NotNil(t, info.Volume24h)
	assert.InDelta(t, 1200.0, *info.Volume24h, 1e-9)
	assert.False(t, info.Resolved)

	// Served from cache
	_, err = g.MarketInfo(context.Background(), "0xc1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGammaClient_UnknownMarketIsCached(t *testing.T) {
	var hits atomic.Int32
	srv := newGammaServer(t, &hits)
	g := NewGammaClient(srv.URL, time.Minute)

	info, err := g.MarketInfo(context.Background(), "0xmissing")
	require.NoError(t, err)
	assert.Nil(t, info)

	info, err = g.MarketInfo(context.Background(), "0xmissing")
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGammaClient_TTLExpiry(t *testing.T) {
	var hits atomic.Int32
	srv := newGammaServer(t, &hits)
	g := NewGammaClient(srv.URL, time.Minute)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	_, err := g.MarketInfo(context.Background(), "0xc1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = g.MarketInfo(context.Background(), "0xc1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	now = now.Add(2 * time.Minute)
	g.Cleanup()
	g.mu.RLock()
	assert.Empty(t, g.markets)
	g.mu.RUnlock()
}

func TestGammaClient_Warm(t *testing.T) {
	var hits atomic.Int32
	srv := newGammaServer(t, &hits)
	g := NewGammaClient(srv.URL, time.Minute)

	n, err := g.Warm(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	info, err := g.MarketInfo(context.Background(), "0xc2")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Politics", info.Category)
	assert.Nil(t, info.EndDate)
	assert.Nil(t, info.Liquidity)
	assert.True(t, info.Resolved)
	assert.Equal(t, store.SideNo, info.WinningSide)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGammaClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL, time.Minute)
	_, err := g.MarketInfo(context.Background(), "0xc1")
	assert.ErrorContains(t, err, "502")
}

func TestWinningSide(t *testing.T) {
	tests := []struct {
		name     string
		outcomes string
		prices   string
		want     store.Side
		ok       bool
	}{
		{"yes wins", `["Yes","No"]`, `["1","0"]`, store.SideYes, true},
		{"no wins", `["Yes","No"]`, `["0.01","0.99"]`, store.SideNo, true},
		{"undecided", `["Yes","No"]`, `["0.5","0.5"]`, "", false},
		{"named outcomes", `["Trump","Harris"]`, `["1","0"]`, "", false},
		{"bad json", `nope`, `["1","0"]`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side, ok := winningSide(tt.outcomes, tt.prices)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, side)
		})
	}
}
