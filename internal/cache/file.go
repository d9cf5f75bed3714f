package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/queryforge/queryforge/internal/errors"
	"github.com/queryforge/queryforge/internal/types"
)

// FileStore is a filesystem-backed Store. Each tier gets its own
// subdirectory; each entry is a pair of files, <hash>.data holding the
// payload and <hash>.meta holding the Entry metadata with version and TTL.
type FileStore struct {
	directory   string
	cleanupFreq time.Duration

	mu      sync.RWMutex
	stats   Stats
	stop    chan struct{}
	stopped sync.Once
}

// NewFileStore creates the tier directories and starts the background
// cleanup goroutine. Close stops it.
func NewFileStore(directory string, cleanupFreq time.Duration) (*FileStore, error) {
	if strings.HasPrefix(directory, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeCache, "failed to get user home directory")
		}

		directory = filepath.Join(home, directory[2:])
	}

	for _, tier := range []types.CacheTier{types.TierSemantic, types.TierPlan, types.TierGeneric} {
		if err := os.MkdirAll(filepath.Join(directory, string(tier)), 0755); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeCache, "failed to create cache directory")
		}
	}

	store := &FileStore{
		directory:   directory,
		cleanupFreq: cleanupFreq,
		stop:        make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go store.backgroundCleanup()
	}

	return store, nil
}

// hashKey turns an arbitrary key into a stable filename.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

func (f *FileStore) dataPath(tier types.CacheTier, key string) string {
	return filepath.Join(f.directory, string(tier), hashKey(key)+".data")
}

func (f *FileStore) metaPath(tier types.CacheTier, key string) string {
	return filepath.Join(f.directory, string(tier), hashKey(key)+".meta")
}

func (f *FileStore) Get(ctx context.Context, key string, tier types.CacheTier, version string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	metaData, err := os.ReadFile(f.metaPath(tier, key))
	if err != nil {
		f.stats.tier(tier).Misses++
		return nil, false, nil
	}

	var entry Entry
	if err := json.Unmarshal(metaData, &entry); err != nil {
		f.stats.tier(tier).Misses++
		f.removeLocked(tier, key)

		return nil, false, nil
	}

	// Stale version or elapsed TTL: remove lazily and miss.
	if entry.Expired(time.Now()) || entry.Version != version {
		f.stats.tier(tier).Misses++
		f.removeLocked(tier, key)

		return nil, false, nil
	}

	data, err := os.ReadFile(f.dataPath(tier, key))
	if err != nil {
		f.stats.tier(tier).Misses++
		return nil, false, nil
	}

	f.stats.tier(tier).Hits++

	return data, true, nil
}

func (f *FileStore) Set(ctx context.Context, key string, tier types.CacheTier, version string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	entry := Entry{
		Key:       key,
		Tier:      tier,
		Version:   version,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	metaData, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeCache, "failed to marshal cache metadata")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.WriteFile(f.dataPath(tier, key), data, 0600); err != nil {
		return errors.Wrap(err, errors.ErrTypeCache, "failed to write cache data")
	}

	if err := os.WriteFile(f.metaPath(tier, key), metaData, 0600); err != nil {
		os.Remove(f.dataPath(tier, key))
		return errors.Wrap(err, errors.ErrTypeCache, "failed to write cache metadata")
	}

	return nil
}

func (f *FileStore) Delete(ctx context.Context, key string, tier types.CacheTier) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeLocked(tier, key)

	return nil
}

func (f *FileStore) removeLocked(tier types.CacheTier, key string) {
	os.Remove(f.dataPath(tier, key))
	os.Remove(f.metaPath(tier, key))
}

func (f *FileStore) InvalidateTier(ctx context.Context, tier types.CacheTier) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Join(f.directory, string(tier))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeCache, "failed to read cache directory")
	}

	for _, e := range entries {
		if !e.IsDir() {
			os.Remove(filepath.Join(dir, e.Name()))
		}
	}

	return nil
}

func (f *FileStore) Clear(ctx context.Context) error {
	for _, tier := range []types.CacheTier{types.TierSemantic, types.TierPlan, types.TierGeneric} {
		if err := f.InvalidateTier(ctx, tier); err != nil {
			return err
		}
	}

	f.mu.Lock()
	f.stats = Stats{}
	f.mu.Unlock()

	return nil
}

func (f *FileStore) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	stats := f.stats

	for _, tier := range []types.CacheTier{types.TierSemantic, types.TierPlan, types.TierGeneric} {
		entries, err := os.ReadDir(filepath.Join(f.directory, string(tier)))
		if err != nil {
			continue
		}

		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".meta") {
				stats.tier(tier).Entries++
			}
		}
	}

	return &stats, nil
}

// Cleanup removes expired and unparsable entries from every tier.
func (f *FileStore) Cleanup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()

	for _, tier := range []types.CacheTier{types.TierSemantic, types.TierPlan, types.TierGeneric} {
		dir := filepath.Join(f.directory, string(tier))

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta") {
				continue
			}

			metaPath := filepath.Join(dir, e.Name())

			metaData, err := os.ReadFile(metaPath)
			if err != nil {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(metaData, &entry); err != nil || entry.Expired(now) {
				os.Remove(metaPath)
				os.Remove(strings.TrimSuffix(metaPath, ".meta") + ".data")
			}
		}
	}

	return nil
}

func (f *FileStore) backgroundCleanup() {
	ticker := time.NewTicker(f.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.Cleanup(context.Background())
		case <-f.stop:
			return
		}
	}
}

func (f *FileStore) Close() error {
	f.stopped.Do(func() {
		close(f.stop)
	})

	return nil
}
