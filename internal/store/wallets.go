package store

import (
	"context"
	"errors"
	"sync"
)

// ErrWalletNotFound is returned by Get for a wallet that has never been observed.
var ErrWalletNotFound = errors.New("wallet not found")

// WalletStore owns per-wallet histories. Observe calls for the same wallet
// are serialized; different wallets proceed independently.
type WalletStore interface {
	// Observe records one trade for the wallet and returns the updated snapshot.
	Observe(ctx context.Context, wallet string, trade Trade) (WalletHistory, error)

	// Get returns the current snapshot or ErrWalletNotFound.
	Get(ctx context.Context, wallet string) (WalletHistory, error)

	// Len returns the number of wallets tracked.
	Len(ctx context.Context) (int, error)
}

// MemoryStore is an in-process WalletStore.
type MemoryStore struct {
	locks keyLock

	mu      sync.RWMutex
	wallets map[string]*WalletHistory
}

// NewMemoryStore creates an empty in-memory wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]*WalletHistory),
	}
}

func (s *MemoryStore) Observe(ctx context.Context, wallet string, trade Trade) (WalletHistory, error) {
	if err := ctx.Err(); err != nil {
		return WalletHistory{}, err
	}

	unlock := s.locks.Lock(wallet)
	defer unlock()

	s.mu.RLock()
	h, exists := s.wallets[wallet]
	s.mu.RUnlock()

	if !exists {
		created := NewWalletHistory(trade)
		s.mu.Lock()
		s.wallets[wallet] = &created
		s.mu.Unlock()
		return created.Clone(), nil
	}

	h.Apply(trade)
	return h.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, wallet string) (WalletHistory, error) {
	unlock := s.locks.Lock(wallet)
	defer unlock()

	s.mu.RLock()
	h, exists := s.wallets[wallet]
	s.mu.RUnlock()

	if !exists {
		return WalletHistory{}, ErrWalletNotFound
	}
	return h.Clone(), nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wallets), nil
}
