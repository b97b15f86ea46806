// Package metrics provides Prometheus instrumentation for the scoring engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polyinsider/scorer/internal/store"
)

const namespace = "polyinsider"

// Metrics contains all Prometheus collectors for the engine.
type Metrics struct {
	registry *prometheus.Registry

	TradesScored   prometheus.Counter
	TradesRejected *prometheus.CounterVec
	SeverityTotal  *prometheus.CounterVec
	CompositeScore prometheus.Histogram
	SubScore       *prometheus.HistogramVec
	StoreLatency   *prometheus.HistogramVec
	WalletsTracked prometheus.Gauge
	FeedTrades     *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	scoreBuckets := prometheus.LinearBuckets(10, 10, 10)

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		TradesScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_scored_total",
			Help:      "Total number of trades scored.",
		}),
		TradesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_rejected_total",
			Help:      "Trades rejected before scoring, by reason.",
		}, []string{"reason"}),
		SeverityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "severity_total",
			Help:      "Scored trades by severity.",
		}, []string{"severity"}),
		CompositeScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "composite_score",
			Help:      "Distribution of composite insider scores.",
			Buckets:   scoreBuckets,
		}),
		SubScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subscore",
			Help:      "Distribution of individual sub-scores.",
			Buckets:   scoreBuckets,
		}, []string{"feature"}),
		StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_latency_seconds",
			Help:      "Wallet store operation latency.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"op"}),
		WalletsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallets_tracked",
			Help:      "Number of wallets with recorded history.",
		}),
		FeedTrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_trades_total",
			Help:      "Trades received from external feeds, by source.",
		}, []string{"source"}),
	}

	m.registry.MustRegister(
		m.TradesScored,
		m.TradesRejected,
		m.SeverityTotal,
		m.CompositeScore,
		m.SubScore,
		m.StoreLatency,
		m.WalletsTracked,
		m.FeedTrades,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordScored records one analyzed trade.
func (m *Metrics) RecordScored(t store.AnalyzedTrade) {
	m.TradesScored.Inc()
	m.SeverityTotal.WithLabelValues(string(t.Severity)).Inc()
	m.CompositeScore.Observe(float64(t.Scores.Composite))

	m.SubScore.WithLabelValues("newness").Observe(float64(t.Scores.Newness))
	m.SubScore.WithLabelValues("concentration").Observe(float64(t.Scores.Concentration))
	m.SubScore.WithLabelValues("timing").Observe(float64(t.Scores.Timing))
	m.SubScore.WithLabelValues("size_vs_liquidity").Observe(float64(t.Scores.SizeVsLiquidity))
	m.SubScore.WithLabelValues("win_rate").Observe(float64(t.Scores.WinRate))
	m.SubScore.WithLabelValues("specialization").Observe(float64(t.Scores.Specialization))
}

// RecordRejected counts a trade dropped before scoring.
func (m *Metrics) RecordRejected(reason string) {
	m.TradesRejected.WithLabelValues(reason).Inc()
}

// ObserveStore records the latency of a wallet store operation.
func (m *Metrics) ObserveStore(op string, started time.Time) {
	m.StoreLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// SetWallets sets the tracked wallet gauge.
func (m *Metrics) SetWallets(n int) {
	m.WalletsTracked.Set(float64(n))
}

// RecordFeedTrade counts a trade received from a feed.
func (m *Metrics) RecordFeedTrade(source string) {
	m.FeedTrades.WithLabelValues(source).Inc()
}
