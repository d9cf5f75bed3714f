package cache

import (
	"context"
	"testing"
	"time"

	"github.com/queryforge/queryforge/internal/types"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()

	store, err := NewFileStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	t.Cleanup(func() { store.Close() })

	return store
}

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()

	store, err := NewMemoryStore(16)
	if err != nil {
		t.Fatalf("failed to create memory store: %v", err)
	}

	return store
}

func runStoreTests(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		err := store.Set(ctx, "key1", types.TierGeneric, "v1", []byte("payload"), time.Hour)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		data, ok, err := store.Get(ctx, "key1", types.TierGeneric, "v1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if !ok {
			t.Fatal("expected a hit")
		}

		if string(data) != "payload" {
			t.Errorf("got %q, want %q", data, "payload")
		}
	})

	t.Run("missing key is a miss", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "nope", types.TierGeneric, "v1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if ok {
			t.Error("expected a miss")
		}
	})

	t.Run("version mismatch is a miss", func(t *testing.T) {
		if err := store.Set(ctx, "gated", types.TierSemantic, "v1", []byte("old"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		_, ok, err := store.Get(ctx, "gated", types.TierSemantic, "v2")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if ok {
			t.Error("stale version must miss")
		}

		// The stale entry was dropped, so even the old version misses now.
		_, ok, _ = store.Get(ctx, "gated", types.TierSemantic, "v1")
		if ok {
			t.Error("stale entry must be removed on version miss")
		}
	})

	t.Run("expired entry is a miss", func(t *testing.T) {
		if err := store.Set(ctx, "shortlived", types.TierGeneric, "v1", []byte("x"), -time.Second); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		_, ok, _ := store.Get(ctx, "shortlived", types.TierGeneric, "v1")
		if ok {
			t.Error("expired entry must miss")
		}
	})

	t.Run("tiers are isolated", func(t *testing.T) {
		if err := store.Set(ctx, "shared", types.TierPlan, "v1", []byte("plan"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		_, ok, _ := store.Get(ctx, "shared", types.TierGeneric, "v1")
		if ok {
			t.Error("key must not leak across tiers")
		}
	})

	t.Run("invalidate tier", func(t *testing.T) {
		if err := store.Set(ctx, "plankey", types.TierPlan, "v1", []byte("a"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		if err := store.Set(ctx, "genkey", types.TierGeneric, "v1", []byte("b"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		if err := store.InvalidateTier(ctx, types.TierPlan); err != nil {
			t.Fatalf("InvalidateTier failed: %v", err)
		}

		_, ok, _ := store.Get(ctx, "plankey", types.TierPlan, "v1")
		if ok {
			t.Error("plan tier should be empty")
		}

		_, ok, _ = store.Get(ctx, "genkey", types.TierGeneric, "v1")
		if !ok {
			t.Error("generic tier should be untouched")
		}
	})

	t.Run("stats count hits and misses", func(t *testing.T) {
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}

		if err := store.Set(ctx, "s1", types.TierSemantic, "v1", []byte("x"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		store.Get(ctx, "s1", types.TierSemantic, "v1")
		store.Get(ctx, "absent", types.TierSemantic, "v1")

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}

		if stats.Semantic.Hits != 1 {
			t.Errorf("semantic hits = %d, want 1", stats.Semantic.Hits)
		}

		if stats.Semantic.Misses != 1 {
			t.Errorf("semantic misses = %d, want 1", stats.Semantic.Misses)
		}

		if stats.Semantic.Entries != 1 {
			t.Errorf("semantic entries = %d, want 1", stats.Semantic.Entries)
		}
	})
}

func TestFileStore(t *testing.T) {
	runStoreTests(t, newTestFileStore(t))
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, newTestMemoryStore(t))
}

func TestFileStoreCleanupRemovesExpired(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "gone", types.TierGeneric, "v1", []byte("x"), -time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.Set(ctx, "kept", types.TierGeneric, "v1", []byte("y"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.Generic.Entries != 1 {
		t.Errorf("generic entries = %d, want 1", stats.Generic.Entries)
	}
}

func TestMemoryStoreEvictsAtCapacity(t *testing.T) {
	store, err := NewMemoryStore(2)
	if err != nil {
		t.Fatalf("failed to create memory store: %v", err)
	}

	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := store.Set(ctx, key, types.TierGeneric, "v1", []byte(key), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	_, ok, _ := store.Get(ctx, "a", types.TierGeneric, "v1")
	if ok {
		t.Error("oldest entry should have been evicted")
	}

	_, ok, _ = store.Get(ctx, "c", types.TierGeneric, "v1")
	if !ok {
		t.Error("newest entry should survive")
	}
}
