package store

import (
	"hash/fnv"
	"sync"
)

const lockShards = 256

// keyLock serializes work per wallet with a fixed pool of mutexes, so memory
// stays bounded no matter how many wallets are seen. Wallets hashing to the
// same shard occasionally wait on each other.
type keyLock struct {
	shards [lockShards]sync.Mutex
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyLock) Lock(key string) func() {
	mu := k.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (k *keyLock) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.shards[h.Sum32()%lockShards]
}
