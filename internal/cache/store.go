// Package cache implements the three-tier result cache: semantic matches on
// normalized questions, plan matches on structural query patterns, and a
// generic byte store underneath both. Entries are gated by schema version so
// a schema change invalidates lazily, on read, without a global sweep.
package cache

import (
	"context"
	"time"

	"github.com/queryforge/queryforge/internal/types"
)

// Entry is the stored form of one cache record. Version is the schema
// version the entry was produced under; a mismatch at read time is a miss.
type Entry struct {
	Key       string          `json:"key"`
	Tier      types.CacheTier `json:"tier"`
	Version   string          `json:"version"`
	Data      []byte          `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the entry's TTL has elapsed.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// TierStats is the hit/miss ledger for one tier.
type TierStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int64 `json:"entries"`
}

// Stats aggregates per-tier counters.
type Stats struct {
	Semantic TierStats `json:"semantic"`
	Plan     TierStats `json:"plan"`
	Generic  TierStats `json:"generic"`
}

func (s *Stats) tier(t types.CacheTier) *TierStats {
	switch t {
	case types.TierSemantic:
		return &s.Semantic
	case types.TierPlan:
		return &s.Plan
	default:
		return &s.Generic
	}
}

// Store is the byte-level cache interface shared by the memory and file
// backends. Get returns (nil, false, nil) on any miss: absent key, expired
// TTL, or a version that no longer matches.
type Store interface {
	Get(ctx context.Context, key string, tier types.CacheTier, version string) ([]byte, bool, error)
	Set(ctx context.Context, key string, tier types.CacheTier, version string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string, tier types.CacheTier) error

	// InvalidateTier drops every entry of one tier.
	InvalidateTier(ctx context.Context, tier types.CacheTier) error

	// Clear drops everything and resets counters.
	Clear(ctx context.Context) error

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
