// Package llm turns a question plus a rendered schema context into a SQL
// candidate by calling an external text-generation provider.
package llm

import (
	"time"

	"github.com/queryforge/queryforge/internal/errors"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderLocal     = "local"
)

// Config holds provider connection settings.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// Validate checks required fields and fills provider defaults in place.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return errors.New(errors.ErrTypeConfig, "provider is required")
	}

	if c.Model == "" {
		return errors.New(errors.ErrTypeConfig, "model is required")
	}

	switch c.Provider {
	case ProviderOpenAI:
		if c.APIKey == "" {
			return errors.New(errors.ErrTypeConfig, "API key is required for OpenAI provider")
		}

		if c.BaseURL == "" {
			c.BaseURL = "https://api.openai.com/v1"
		}
	case ProviderAnthropic:
		if c.APIKey == "" {
			return errors.New(errors.ErrTypeConfig, "API key is required for Anthropic provider")
		}

		if c.BaseURL == "" {
			c.BaseURL = "https://api.anthropic.com/v1"
		}
	case ProviderOllama, ProviderLocal:
		if c.BaseURL == "" {
			c.BaseURL = "http://localhost:11434"
		}
	default:
		return errors.Newf(errors.ErrTypeConfig, "unsupported provider: %s", c.Provider)
	}

	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}

	return nil
}
