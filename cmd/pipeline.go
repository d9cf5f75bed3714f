package cmd

import (
	"context"
	"time"

	"github.com/queryforge/queryforge/internal/cache"
	"github.com/queryforge/queryforge/internal/config"
	"github.com/queryforge/queryforge/internal/convert"
	"github.com/queryforge/queryforge/internal/errors"
	"github.com/queryforge/queryforge/internal/llm"
	"github.com/queryforge/queryforge/internal/schema"
)

// pipeline bundles everything a command needs to answer questions.
type pipeline struct {
	converter *convert.Converter
	versions  *schema.VersionManager
	source    *schema.DuckDBSource
	store     cache.Store
}

func (p *pipeline) Close() {
	p.store.Close()
	p.source.Close()
}

// buildPipeline opens the database, loads the schema snapshot, and wires
// the cache tiers, generator, and executor into a converter.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	source, err := schema.NewDuckDBSource(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	snapshot, err := source.Load(ctx)
	if err != nil {
		source.Close()
		return nil, err
	}

	versions := schema.NewVersionManager()
	versions.Update(snapshot)

	cleanupFreq, _ := time.ParseDuration(cfg.Cache.CleanupFreq)

	store, err := cache.NewFileStore(cfg.Cache.Directory, cleanupFreq)
	if err != nil {
		source.Close()
		return nil, err
	}

	semanticTTL, _ := time.ParseDuration(cfg.Cache.SemanticTTL)
	planTTL, _ := time.ParseDuration(cfg.Cache.PlanTTL)

	genTimeout, _ := time.ParseDuration(cfg.Generation.Timeout)

	generator, err := llm.NewClient(llm.Config{
		Provider: cfg.Generation.Provider,
		Model:    cfg.Generation.Model,
		APIKey:   cfg.Generation.APIKey,
		BaseURL:  cfg.Generation.BaseURL,
		Timeout:  genTimeout,
	})
	if err != nil {
		store.Close()
		source.Close()

		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to configure generation provider")
	}

	converter := convert.NewConverter(
		versions,
		schema.NewOptimizer(cfg.Schema.MaxRelevantTables),
		cache.NewSemanticCache(store, nil, cfg.Cache.SimilarityThreshold, semanticTTL),
		cache.NewPlanCache(store, planTTL),
		generator,
		convert.NewSQLExecutor(source.DB()),
		cfg.Generation.MaxCorrections,
		cfg.Generation.DefaultLimit,
	)

	return &pipeline{
		converter: converter,
		versions:  versions,
		source:    source,
		store:     store,
	}, nil
}
