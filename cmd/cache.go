package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/queryforge/queryforge/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the query cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-tier cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached entries",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openStore() (cache.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// No background cleanup for one-shot inspection commands.
	return cache.NewFileStore(cfg.Cache.Directory, 0)
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%-10s %8s %8s %8s\n", "tier", "entries", "hits", "misses")

	for _, row := range []struct {
		name  string
		stats cache.TierStats
	}{
		{"semantic", stats.Semantic},
		{"plan", stats.Plan},
		{"generic", stats.Generic},
	} {
		fmt.Printf("%-10s %8d %8d %8d\n", row.name, row.stats.Entries, row.stats.Hits, row.stats.Misses)
	}

	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(cmd.Context()); err != nil {
		return err
	}

	fmt.Println("Cache cleared.")

	return nil
}
