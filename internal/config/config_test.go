package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := DefaultConfig()
	if cfg.Storage.DatabasePath != want.Storage.DatabasePath {
		t.Errorf("DatabasePath = %q, want %q", cfg.Storage.DatabasePath, want.Storage.DatabasePath)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Review.DualSignoff {
		t.Error("dual signoff should default off")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DatabasePath = "custom/engine.db"
	cfg.Review.DualSignoff = true
	cfg.Logging.Level = "debug"

	path := DefaultPath(t.TempDir())
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Storage.DatabasePath != "custom/engine.db" {
		t.Errorf("DatabasePath = %q", got.Storage.DatabasePath)
	}
	if !got.Review.DualSignoff {
		t.Error("DualSignoff not persisted")
	}
	if got.Logging.Level != "debug" {
		t.Errorf("Level = %q", got.Logging.Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PHASEGATE_DB", "/tmp/override.db")
	t.Setenv("PHASEGATE_LOG_LEVEL", "warn")
	t.Setenv("PHASEGATE_LOG_FORMAT", "json")
	t.Setenv("PHASEGATE_DUAL_SIGNOFF", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.DatabasePath != "/tmp/override.db" {
		t.Errorf("DatabasePath = %q", cfg.Storage.DatabasePath)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Format = %q", cfg.Logging.Format)
	}
	if !cfg.Review.DualSignoff {
		t.Error("DualSignoff override ignored")
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "error"
	path := DefaultPath(t.TempDir())
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Setenv("PHASEGATE_LOG_LEVEL", "debug")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Logging.Level != "debug" {
		t.Errorf("Level = %q, env should win over file", got.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "TRACE" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"empty db path", func(c *Config) { c.Storage.DatabasePath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted bad config")
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage: [not a map"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}
