// Package analyzer joins wallet history, market context and scoring into
// analyzed trades.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polyinsider/scorer/internal/scoring"
	"github.com/polyinsider/scorer/internal/store"
)

// DefaultWorkers is the batch scoring concurrency when none is configured.
const DefaultWorkers = 5

// MarketSource resolves market metadata by condition ID. A nil result with
// a nil error means the market is unknown.
type MarketSource interface {
	MarketInfo(ctx context.Context, conditionID string) (*store.MarketInfo, error)
}

// Recorder receives analysis metrics.
type Recorder interface {
	RecordScored(t store.AnalyzedTrade)
	RecordRejected(reason string)
	ObserveStore(op string, started time.Time)
	SetWallets(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordScored(store.AnalyzedTrade) {}
func (nopRecorder) RecordRejected(string)            {}
func (nopRecorder) ObserveStore(string, time.Time)   {}
func (nopRecorder) SetWallets(int)                   {}

// Analyzer validates, records and scores trades.
type Analyzer struct {
	wallets  store.WalletStore
	scorer   *scoring.Scorer
	markets  MarketSource
	recorder Recorder
	workers  int
	logger   *slog.Logger
	profiles *profileIndex
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMarkets sets the market metadata source. Without one every trade is
// scored on fallback context.
func WithMarkets(m MarketSource) Option {
	return func(a *Analyzer) { a.markets = m }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Analyzer) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithWorkers sets batch scoring concurrency.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Analyzer.
func New(wallets store.WalletStore, scorer *scoring.Scorer, opts ...Option) *Analyzer {
	a := &Analyzer{
		wallets:  wallets,
		scorer:   scorer,
		recorder: nopRecorder{},
		workers:  DefaultWorkers,
		logger:   slog.Default(),
		profiles: newProfileIndex(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze records one trade in its wallet's history and scores it.
// Invalid trades return a *store.InvalidTradeError and leave history untouched.
func (a *Analyzer) Analyze(ctx context.Context, trade store.Trade) (store.AnalyzedTrade, error) {
	if err := a.validate(trade); err != nil {
		return store.AnalyzedTrade{}, err
	}

	history, err := a.observe(ctx, trade)
	if err != nil {
		return store.AnalyzedTrade{}, err
	}

	info := a.marketInfo(ctx, trade.MarketID)
	mc := a.profiles.observe(trade, info)

	result := a.scorer.Analyze(trade, history, mc)
	a.recorder.RecordScored(result)
	a.refreshWallets(ctx)

	return result, nil
}

type batchItem struct {
	trade   store.Trade
	history store.WalletHistory
	mc      *store.MarketContext
}

// AnalyzeBatch analyzes trades as one unit and returns them ranked.
// History is recorded in input order so each trade sees exactly the
// trades before it; market lookups and scoring then run concurrently.
// Invalid trades are skipped.
//
// Every valid trade is recorded before any lookup starts. If ctx is
// cancelled after that point the error is returned without results, but
// the recorded history stays: the trades count as seen for later scoring.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, trades []store.Trade) ([]store.AnalyzedTrade, error) {
	items := make([]batchItem, 0, len(trades))
	for _, trade := range trades {
		if err := a.validate(trade); err != nil {
			continue
		}
		history, err := a.observe(ctx, trade)
		if err != nil {
			return nil, err
		}
		items = append(items, batchItem{trade: trade, history: history})
	}

	infos, err := a.resolveMarkets(ctx, items)
	if err != nil {
		return nil, err
	}

	for i := range items {
		items[i].mc = a.profiles.observe(items[i].trade, infos[items[i].trade.MarketID])
	}

	now := a.scorer.Now()
	results := make([]store.AnalyzedTrade, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := range items {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = scoring.AnalyzeAt(items[i].trade, items[i].history, items[i].mc, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		a.recorder.RecordScored(r)
	}
	a.refreshWallets(ctx)

	a.logger.Info("batch_analyzed",
		"received", len(trades),
		"scored", len(results),
		"markets", len(infos),
	)

	return scoring.Rank(results), nil
}

// RefreshResolutions re-queries every market some wallet holds that has
// not settled yet and records the ones that have. It returns the number of
// newly settled markets. Lookup failures are logged and retried on the
// next call.
func (a *Analyzer) RefreshResolutions(ctx context.Context) (int, error) {
	if a.markets == nil {
		return 0, nil
	}

	pending := a.profiles.unresolved()
	settled := make([]*store.MarketInfo, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, id := range pending {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if info := a.marketInfo(gctx, id); info != nil && info.Resolved {
				settled[i] = info
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	resolved := 0
	for i, info := range settled {
		if info == nil {
			continue
		}
		a.profiles.resolve(pending[i], info.WinningSide)
		resolved++
	}

	a.logger.Debug("resolutions_refreshed", "pending", len(pending), "resolved", resolved)
	return resolved, nil
}

// resolveMarkets looks up each distinct market once.
func (a *Analyzer) resolveMarkets(ctx context.Context, items []batchItem) (map[string]*store.MarketInfo, error) {
	infos := make(map[string]*store.MarketInfo)
	if a.markets == nil {
		return infos, nil
	}

	var ids []string
	for _, item := range items {
		if _, ok := infos[item.trade.MarketID]; ok {
			continue
		}
		infos[item.trade.MarketID] = nil
		ids = append(ids, item.trade.MarketID)
	}

	resolved := make([]*store.MarketInfo, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resolved[i] = a.marketInfo(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		infos[id] = resolved[i]
	}
	return infos, nil
}

func (a *Analyzer) validate(trade store.Trade) error {
	err := store.ValidateTrade(trade)
	if err == nil {
		return nil
	}

	reason := "invalid"
	var invalid *store.InvalidTradeError
	if errors.As(err, &invalid) {
		reason = invalid.Field
	}
	a.recorder.RecordRejected(reason)
	a.logger.Debug("trade_rejected", "trade_id", trade.ID, "error", err)
	return err
}

func (a *Analyzer) observe(ctx context.Context, trade store.Trade) (store.WalletHistory, error) {
	started := time.Now()
	history, err := a.wallets.Observe(ctx, trade.Wallet, trade)
	a.recorder.ObserveStore("observe", started)
	if err != nil {
		return store.WalletHistory{}, fmt.Errorf("observe wallet %s: %w", trade.Wallet, err)
	}
	return history, nil
}

// marketInfo degrades lookup failures to unknown context.
func (a *Analyzer) marketInfo(ctx context.Context, conditionID string) *store.MarketInfo {
	if a.markets == nil {
		return nil
	}

	info, err := a.markets.MarketInfo(ctx, conditionID)
	if err != nil {
		a.logger.Warn("market_context_unavailable", "condition_id", conditionID, "error", err)
		return nil
	}
	return info
}

func (a *Analyzer) refreshWallets(ctx context.Context) {
	started := time.Now()
	n, err := a.wallets.Len(ctx)
	a.recorder.ObserveStore("len", started)
	if err != nil {
		a.logger.Warn("wallet_count_failed", "error", err)
		return
	}
	a.recorder.SetWallets(n)
}
