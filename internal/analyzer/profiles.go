package analyzer

import (
	"sync"

	"github.com/polyinsider/scorer/internal/store"
)

// walletProfile tracks what the analyzer has learned about a wallet's
// markets beyond the persisted history: their categories and the outcome
// its latest trade in each is exposed to.
type walletProfile struct {
	categories map[string]string
	positions  map[string]store.Side
}

// profileIndex is process-local. With a shared Redis store each engine
// instance builds its own view from the trades it sees.
type profileIndex struct {
	mu          sync.Mutex
	wallets     map[string]*walletProfile
	resolutions map[string]store.Side
}

func newProfileIndex() *profileIndex {
	return &profileIndex{
		wallets:     make(map[string]*walletProfile),
		resolutions: make(map[string]store.Side),
	}
}

// observe records the trade against the wallet's profile and returns the
// scoring context for it. info may be nil.
func (p *profileIndex) observe(trade store.Trade, info *store.MarketInfo) *store.MarketContext {
	p.mu.Lock()
	defer p.mu.Unlock()

	prof, ok := p.wallets[trade.Wallet]
	if !ok {
		prof = &walletProfile{
			categories: make(map[string]string),
			positions:  make(map[string]store.Side),
		}
		p.wallets[trade.Wallet] = prof
	}
	prof.positions[trade.MarketID] = exposure(trade)

	mc := &store.MarketContext{}
	if info != nil {
		mc.EndDate = info.EndDate
		mc.Liquidity = info.Liquidity
		mc.Rolling24hVolume = info.Volume24h
		if info.Category != "" {
			prof.categories[trade.MarketID] = info.Category
		}
		if info.Resolved {
			p.resolutions[trade.MarketID] = info.WinningSide
		}
	}

	for _, category := range prof.categories {
		mc.Categories = append(mc.Categories, category)
	}

	for market, side := range prof.positions {
		winner, resolved := p.resolutions[market]
		if !resolved {
			continue
		}
		mc.ResolvedTotal++
		if side == winner {
			mc.ResolvedWins++
		}
	}

	return mc
}

// unresolved returns the markets held by any wallet whose outcome is not
// known yet, sorted.
func (p *profileIndex) unresolved() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := make(store.MarketSet)
	for _, prof := range p.wallets {
		for market := range prof.positions {
			if _, ok := p.resolutions[market]; !ok {
				pending.Add(market)
			}
		}
	}
	return pending.Sorted()
}

// resolve records a settled market.
func (p *profileIndex) resolve(market string, winner store.Side) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolutions[market] = winner
}

// exposure is the outcome a trade bets on. Selling an outcome on a binary
// market is exposure to the other one.
func exposure(trade store.Trade) store.Side {
	if trade.Direction != store.DirectionSell {
		return trade.Side
	}
	if trade.Side == store.SideYes {
		return store.SideNo
	}
	return store.SideYes
}
