// Package config holds the ctxnav configuration: where context requests go,
// how engines are bounded, logging, metrics and the fixture collaborator.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ctxnav configuration.
type Config struct {
	Name string `yaml:"name"`

	Fetch    FetchConfig    `yaml:"fetch"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Fixtures FixturesConfig `yaml:"fixtures"`
}

// FetchConfig configures how collection context requests are issued.
type FetchConfig struct {
	// BaseURL resolves the relative paths declared by mount points.
	BaseURL      string `yaml:"base_url"`
	UserAgent    string `yaml:"user_agent"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
	// Timeout is empty by default: requests may wait indefinitely.
	Timeout string `yaml:"timeout"`
}

// EngineConfig configures disclosure engines.
type EngineConfig struct {
	// MaxInFlight bounds concurrent requests per page (0 = unbounded).
	MaxInFlight   int    `yaml:"max_in_flight"`
	CollapseLabel string `yaml:"collapse_label"`
	ExpandLabel   string `yaml:"expand_label"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level              string   `yaml:"level"`  // debug, info, warn, error
	Format             string   `yaml:"format"` // json, console
	File               string   `yaml:"file"`
	DisabledCategories []string `yaml:"disabled_categories"`
}

// MetricsConfig configures where resolve runs leave their metrics.
type MetricsConfig struct {
	// File is a Prometheus textfile written after each resolve run.
	File string `yaml:"file"`
}

// FixturesConfig configures the fixture collaborator server.
type FixturesConfig struct {
	Path      string `yaml:"path"`
	Addr      string `yaml:"addr"`
	Watch     bool   `yaml:"watch"`
	CacheSize int    `yaml:"cache_size"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "ctxnav",
		Fetch: FetchConfig{
			UserAgent:    "ctxnav/1.0 (+context-navigation)",
			MaxBodyBytes: 2 << 20,
		},
		Engine: EngineConfig{
			CollapseLabel: "Collapse",
			ExpandLabel:   "Expand",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Fixtures: FixturesConfig{
			Addr:      ":8080",
			CacheSize: 512,
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields defaults.
// Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			// defaults
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML. The file is replaced atomically so
// a running fixture watcher never sees a half-written config.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ctxnav-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to stage config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CTXNAV_BASE_URL"); v != "" {
		c.Fetch.BaseURL = v
	}
	if v := os.Getenv("CTXNAV_USER_AGENT"); v != "" {
		c.Fetch.UserAgent = v
	}
	if v := os.Getenv("CTXNAV_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CTXNAV_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MaxInFlight = n
		}
	}
	if v := os.Getenv("CTXNAV_METRICS_FILE"); v != "" {
		c.Metrics.File = v
	}
	if v := os.Getenv("CTXNAV_FIXTURES"); v != "" {
		c.Fixtures.Path = v
	}
}

// GetFetchTimeout returns the request timeout; zero means none.
func (c *Config) GetFetchTimeout() time.Duration {
	if c.Fetch.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Fetch.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// GetBaseURL parses the configured base URL; nil when unset.
func (c *Config) GetBaseURL() (*url.URL, error) {
	if c.Fetch.BaseURL == "" {
		return nil, nil
	}
	u, err := url.Parse(c.Fetch.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid fetch.base_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid fetch.base_url %q: scheme and host required", c.Fetch.BaseURL)
	}
	return u, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := c.GetBaseURL(); err != nil {
		return err
	}
	if c.Fetch.Timeout != "" {
		if d, err := time.ParseDuration(c.Fetch.Timeout); err != nil || d < 0 {
			return fmt.Errorf("invalid fetch.timeout %q", c.Fetch.Timeout)
		}
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return fmt.Errorf("fetch.max_body_bytes must not be negative")
	}
	if c.Engine.MaxInFlight < 0 {
		return fmt.Errorf("engine.max_in_flight must not be negative")
	}
	if c.Fixtures.CacheSize < 0 {
		return fmt.Errorf("fixtures.cache_size must not be negative")
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	return nil
}
