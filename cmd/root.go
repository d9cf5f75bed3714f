package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/queryforge/queryforge/internal/config"
	"github.com/queryforge/queryforge/internal/errors"
	"github.com/queryforge/queryforge/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "queryforge",
	Short: "Ask questions against a DuckDB database in plain language",
	Long: `queryforge converts natural-language questions into validated read-only SQL
against a local DuckDB database. Repeated and structurally similar questions
are answered from a schema-version-aware cache; everything else goes through
the configured generation provider with validation and self-correction.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	ctx := context.Background()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig loads and prepares configuration for a command run, and
// initializes the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to load configuration")
	}

	cfg.ExpandAllPaths()

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to create directories")
	}

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to initialize logging")
	}

	return cfg, nil
}
