// Package config loads phasegate configuration from .phasegate/config.yaml
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultDir is the engine's dot-directory inside a project.
const DefaultDir = ".phasegate"

// Config holds all phasegate configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Storage
	Storage StorageConfig `yaml:"storage"`

	// Review gate behavior
	Review ReviewConfig `yaml:"review"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig configures the document store.
type StorageConfig struct {
	// Path to the SQLite database holding all features, documents,
	// verdicts, and grants.
	DatabasePath string `yaml:"database_path"`
}

// ReviewConfig configures the review gate.
type ReviewConfig struct {
	// DualSignoff requires both an automated and a human sub-verdict
	// before a phase can leave SubmittedForReview.
	DualSignoff bool `yaml:"dual_signoff"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "phasegate",
		Version: "0.3.0",

		Storage: StorageConfig{
			DatabasePath: filepath.Join(DefaultDir, "phasegate.db"),
		},

		Review: ReviewConfig{
			DualSignoff: false,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns the config file location under root.
func DefaultPath(root string) string {
	return filepath.Join(root, DefaultDir, "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks config values that would otherwise fail deep inside a
// subsystem.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path must not be empty")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("PHASEGATE_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if level := os.Getenv("PHASEGATE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("PHASEGATE_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if dual := os.Getenv("PHASEGATE_DUAL_SIGNOFF"); dual != "" {
		if v, err := strconv.ParseBool(dual); err == nil {
			c.Review.DualSignoff = v
		}
	}
}
