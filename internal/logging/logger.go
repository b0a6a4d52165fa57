// Package logging provides categorized structured logging for phasegate,
// backed by zap. Each subsystem logs through a named child logger so log
// output can be filtered per category.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"phasegate/internal/config"
)

// Category names one logging subsystem.
type Category string

const (
	CategoryStore       Category = "store"       // Document store operations
	CategoryRegistry    Category = "registry"    // Workspace registry, access checks
	CategoryPhase       Category = "phase"       // Phase state machine transitions
	CategoryGate        Category = "gate"        // Review gate verdicts
	CategoryHandoff     Category = "handoff"     // Handoff open/revise
	CategoryCoordinator Category = "coordinator" // Coordinator facade
	CategoryCLI         Category = "cli"         // Command surface
)

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	sugared = map[Category]*zap.SugaredLogger{}
)

// Init builds the root logger from config. Safe to call more than once;
// later calls replace the logger for all categories.
func Init(cfg config.LoggingConfig, verbose bool) error {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); cfg.Level != "" && err != nil {
		return err
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)

	mu.Lock()
	defer mu.Unlock()
	root = zap.New(core)
	sugared = map[Category]*zap.SugaredLogger{}
	return nil
}

// Get returns the sugared logger for a category.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if lg, ok := sugared[cat]; ok {
		mu.RUnlock()
		return lg
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if lg, ok := sugared[cat]; ok {
		return lg
	}
	lg := root.Named(string(cat)).Sugar()
	sugared[cat] = lg
	return lg
}

// Sync flushes buffered log entries. Called on process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
