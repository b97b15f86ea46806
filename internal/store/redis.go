package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix namespaces wallet keys in Redis
	DefaultKeyPrefix = "polyinsider:"
	// maxObserveRetries bounds optimistic transaction retries per Observe
	maxObserveRetries = 16
)

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore persists wallet histories as JSON documents under
// {prefix}wallet:{address}. Updates run as WATCH/MULTI transactions so
// several engine processes may share one Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	locks  keyLock
	logger *slog.Logger
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL, redisPassword, prefix string, logger *slog.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if redisPassword != "" {
		opt.Password = redisPassword
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, prefix, logger), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "wallet_store"),
	}
}

func (s *RedisStore) walletKey(wallet string) string {
	return s.prefix + "wallet:" + wallet
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "wallets"
}

func (s *RedisStore) Observe(ctx context.Context, wallet string, trade Trade) (WalletHistory, error) {
	// Local lock avoids pointless WATCH conflicts between goroutines of this process.
	unlock := s.locks.Lock(wallet)
	defer unlock()

	key := s.walletKey(wallet)
	var updated WalletHistory

	txf := func(tx *redis.Tx) error {
		h, found, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}

		if found {
			h.Apply(trade)
		} else {
			h = NewWalletHistory(trade)
		}

		data, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("json marshal failed: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.indexKey(), wallet)
			return nil
		})
		if err != nil {
			return err
		}

		updated = h
		return nil
	}

	for attempt := 0; attempt < maxObserveRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("wallet_update_conflict", "wallet", wallet, "attempt", attempt+1)
			continue
		}
		return WalletHistory{}, fmt.Errorf("observe wallet %s: %w", wallet, err)
	}

	return WalletHistory{}, fmt.Errorf("observe wallet %s: too many concurrent updates", wallet)
}

func (s *RedisStore) Get(ctx context.Context, wallet string) (WalletHistory, error) {
	h, found, err := s.load(ctx, s.client, s.walletKey(wallet))
	if err != nil {
		return WalletHistory{}, err
	}
	if !found {
		return WalletHistory{}, ErrWalletNotFound
	}
	return h, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis SCARD failed: %w", err)
	}
	return int(n), nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) load(ctx context.Context, c getter, key string) (WalletHistory, bool, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return WalletHistory{}, false, nil
		}
		return WalletHistory{}, false, fmt.Errorf("redis GET failed: %w", err)
	}

	var h WalletHistory
	if err := json.Unmarshal(raw, &h); err != nil {
		return WalletHistory{}, false, fmt.Errorf("decode wallet %s: %w", key, err)
	}
	if h.DistinctMarkets == nil {
		h.DistinctMarkets = make(MarketSet)
	}
	return h, true, nil
}
