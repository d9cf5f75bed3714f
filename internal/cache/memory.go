package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/queryforge/queryforge/internal/errors"
	"github.com/queryforge/queryforge/internal/types"
)

// MemoryStore is an LRU-bounded in-process Store. Expiry and version gating
// are checked on read; the LRU handles capacity eviction.
type MemoryStore struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, Entry]
	stats Stats
}

// NewMemoryStore creates a memory store holding at most maxEntries records
// across all tiers.
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}

	cache, err := lru.New[string, Entry](maxEntries)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeCache, "failed to create LRU cache")
	}

	return &MemoryStore{lru: cache}, nil
}

func memoryKey(tier types.CacheTier, key string) string {
	return string(tier) + ":" + key
}

func (m *MemoryStore) Get(ctx context.Context, key string, tier types.CacheTier, version string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lru.Get(memoryKey(tier, key))
	if !ok {
		m.stats.tier(tier).Misses++
		return nil, false, nil
	}

	if entry.Expired(time.Now()) || entry.Version != version {
		m.lru.Remove(memoryKey(tier, key))
		m.stats.tier(tier).Misses++

		return nil, false, nil
	}

	m.stats.tier(tier).Hits++

	return entry.Data, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, tier types.CacheTier, version string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Add(memoryKey(tier, key), Entry{
		Key:       key,
		Tier:      tier,
		Version:   version,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})

	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string, tier types.CacheTier) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Remove(memoryKey(tier, key))

	return nil
}

func (m *MemoryStore) InvalidateTier(ctx context.Context, tier types.CacheTier) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := string(tier) + ":"
	for _, k := range m.lru.Keys() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			m.lru.Remove(k)
		}
	}

	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Purge()
	m.stats = Stats{}

	return nil
}

func (m *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats

	for _, k := range m.lru.Keys() {
		for _, tier := range []types.CacheTier{types.TierSemantic, types.TierPlan, types.TierGeneric} {
			prefix := string(tier) + ":"
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
				stats.tier(tier).Entries++
			}
		}
	}

	return &stats, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
