// Package logging builds the zap loggers used across ctxnav.
//
// Each subsystem logs under a category; categories are named children of
// one root logger configured from config.LoggingConfig. Until Initialize is
// called every category logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // CLI startup, config
	CategoryEngine  Category = "engine"  // Disclosure engines
	CategoryFetch   Category = "fetch"   // Context requests
	CategoryFixture Category = "fixture" // Fixture server
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	File   string // optional extra output path
	// Disabled categories log nothing.
	Disabled []string
}

var (
	mu       sync.RWMutex
	root     = zap.NewNop()
	disabled = map[Category]bool{}
)

// ParseLevel maps a config level to zap. Unknown levels fall back to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a root logger from opts without installing it.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Initialize builds and installs the root logger.
func Initialize(opts Options) (*zap.Logger, error) {
	logger, err := New(opts)
	if err != nil {
		return nil, err
	}
	Install(logger, opts.Disabled...)
	return logger, nil
}

// Install sets the root logger directly. Tests use it with zaptest or
// observer cores.
func Install(logger *zap.Logger, disabledCategories ...string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	off := make(map[Category]bool, len(disabledCategories))
	for _, c := range disabledCategories {
		off[Category(c)] = true
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	disabled = off
}

// Get returns the logger for a category.
func Get(category Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if disabled[category] {
		return zap.NewNop()
	}
	return root.Named(string(category))
}

// Sync flushes the root logger.
func Sync() {
	mu.RLock()
	l := root
	mu.RUnlock()
	_ = l.Sync()
}
