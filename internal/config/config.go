// Package config holds the engine's runtime configuration. Values come
// from environment variables first, then command-line flags override them.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration of one engine process.
type Config struct {
	// ProgramPath is the .hcl program file or directory to load.
	ProgramPath string `env:"GRIDWALK_PROGRAM"`
	// StatePath is the SQLite file backing persistence. Empty selects the
	// ephemeral in-memory backend.
	StatePath string `env:"GRIDWALK_STATE"`
	// UserID is the identity whose root the session runs under.
	UserID string `env:"GRIDWALK_USER" envDefault:"local"`
	// MaxSteps is the per-walker traversal ceiling.
	MaxSteps int `env:"GRIDWALK_MAX_STEPS" envDefault:"10000"`
	// LazyLoad loads roots only, expanding hops on demand.
	LazyLoad bool `env:"GRIDWALK_LAZY_LOAD"`

	LogLevel  string `env:"GRIDWALK_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"GRIDWALK_LOG_FORMAT" envDefault:"text"`

	// OpenAIAPIKey enables the external completion capability when set.
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"GRIDWALK_OPENAI_MODEL"`
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks invariants flag parsing cannot express.
func (c *Config) Validate() error {
	if c.ProgramPath == "" {
		return fmt.Errorf("program path is required")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level %q", c.LogLevel)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max-steps must be positive")
	}
	return nil
}
