package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `json:"database"   envPrefix:"QUERYFORGE_"`
	Generation GenerationConfig `json:"generation" envPrefix:"QUERYFORGE_"`
	Cache      CacheConfig      `json:"cache"      envPrefix:"QUERYFORGE_"`
	Schema     SchemaConfig     `json:"schema"     envPrefix:"QUERYFORGE_"`
	Logging    LoggingConfig    `json:"logging"    envPrefix:"QUERYFORGE_"`
}

// DatabaseConfig represents the target database configuration
type DatabaseConfig struct {
	Path         string `json:"path"          env:"DB_PATH"          envDefault:"~/.config/queryforge/warehouse.db"`
	QueryTimeout string `json:"query_timeout" env:"DB_QUERY_TIMEOUT" envDefault:"30s"`
	MaxRows      int    `json:"max_rows"      env:"DB_MAX_ROWS"      envDefault:"1000"`
}

// GenerationConfig configures the external text-generation provider
type GenerationConfig struct {
	Provider       string `json:"provider"        env:"GEN_PROVIDER"        envDefault:"openai"`
	Model          string `json:"model"           env:"GEN_MODEL"           envDefault:"gpt-4o-mini"`
	APIKey         string `json:"api_key"         env:"GEN_API_KEY"`
	BaseURL        string `json:"base_url"        env:"GEN_BASE_URL"`
	Timeout        string `json:"timeout"         env:"GEN_TIMEOUT"         envDefault:"60s"`
	MaxCorrections int    `json:"max_corrections" env:"GEN_MAX_CORRECTIONS" envDefault:"2"`
	DefaultLimit   int    `json:"default_limit"   env:"GEN_DEFAULT_LIMIT"   envDefault:"100"`
}

// CacheConfig represents caching configuration for all tiers
type CacheConfig struct {
	Directory           string  `json:"directory"            env:"CACHE_DIR"                  envDefault:"~/.cache/queryforge"`
	MaxEntries          int     `json:"max_entries"          env:"CACHE_MAX_ENTRIES"          envDefault:"2048"`
	SemanticTTL         string  `json:"semantic_ttl"         env:"CACHE_SEMANTIC_TTL"         envDefault:"30m"`
	PlanTTL             string  `json:"plan_ttl"             env:"CACHE_PLAN_TTL"             envDefault:"24h"`
	GenericTTL          string  `json:"generic_ttl"          env:"CACHE_GENERIC_TTL"          envDefault:"1h"`
	SimilarityThreshold float64 `json:"similarity_threshold" env:"CACHE_SIMILARITY_THRESHOLD" envDefault:"0.85"`
	CleanupFreq         string  `json:"cleanup_frequency"    env:"CACHE_CLEANUP_FREQ"         envDefault:"1h"`
}

// SchemaConfig controls schema-context compaction
type SchemaConfig struct {
	MaxRelevantTables int `json:"max_relevant_tables" env:"SCHEMA_MAX_RELEVANT_TABLES" envDefault:"10"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"  envDefault:"info"`   // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT" envDefault:"text"`   // text, json
	Output string `json:"output" env:"LOG_OUTPUT" envDefault:"stderr"` // stdout, stderr, file
	File   string `json:"file"   env:"LOG_FILE"   envDefault:"~/.config/queryforge/logs/app.log"`
}

// LoadConfig loads configuration in layers: tag defaults, then the JSON
// config file, then environment variables.
func LoadConfig() (*Config, error) {
	defaults := &Config{}
	if err := env.ParseWithOptions(defaults, env.Options{Environment: map[string]string{}}); err != nil {
		return nil, fmt.Errorf("failed to parse default configuration: %w", err)
	}

	fromEnv := &Config{}
	if err := env.Parse(fromEnv); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	config := *defaults

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(&config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnvOverrides(&config, fromEnv, defaults)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// mergeConfigs merges source configuration into target configuration
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// applyEnvOverrides copies values from source into target wherever source
// differs from the tag defaults, i.e. where an environment variable was set.
// Environment variables take precedence over file values.
func applyEnvOverrides(target, source, defaults *Config) {
	var walk func(t, s, d reflect.Value)
	walk = func(t, s, d reflect.Value) {
		if t.Kind() == reflect.Struct {
			for i := range t.NumField() {
				walk(t.Field(i), s.Field(i), d.Field(i))
			}

			return
		}

		if !s.Equal(d) {
			t.Set(s)
		}
	}

	walk(
		reflect.ValueOf(target).Elem(),
		reflect.ValueOf(source).Elem(),
		reflect.ValueOf(defaults).Elem(),
	)
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	for name, value := range map[string]string{
		"database query timeout":  config.Database.QueryTimeout,
		"generation timeout":      config.Generation.Timeout,
		"semantic cache TTL":      config.Cache.SemanticTTL,
		"plan cache TTL":          config.Cache.PlanTTL,
		"generic cache TTL":       config.Cache.GenericTTL,
		"cache cleanup frequency": config.Cache.CleanupFreq,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.Cache.SimilarityThreshold < 0 || config.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf(
			"similarity threshold must be in [0,1]: %v",
			config.Cache.SimilarityThreshold,
		)
	}

	if config.Generation.MaxCorrections < 0 {
		return fmt.Errorf("max corrections must not be negative: %d", config.Generation.MaxCorrections)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv("QUERYFORGE_CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "queryforge", "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Database.Path = expandPath(c.Database.Path)
	c.Cache.Directory = expandPath(c.Cache.Directory)
	c.Logging.File = expandPath(c.Logging.File)
}

// EnsureDirectories creates necessary directories for the configuration
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Database.Path),
		c.Cache.Directory,
		filepath.Dir(c.Logging.File),
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
