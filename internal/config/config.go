// Package config provides unified configuration loading for simcast.
// Application settings layer defaults, an optional YAML file and
// SIMCAST_* environment variables; run configurations are explicit YAML
// documents loaded through LoadRunConfig.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config contains the application-level settings: everything that outlives
// a single run.
type Config struct {
	// Storage locates the database backing the node and telemetry stores.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging contains settings for operational and per-tick logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Jobs bounds the run worker pool.
	Jobs JobsConfig `json:"jobs" yaml:"jobs"`

	// Archive governs archive retention.
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
}

// StorageConfig locates the simcast data directory.
type StorageConfig struct {
	// Dir is the directory holding simcast.db. Empty selects ~/.simcast.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// ResolvedDir returns the data directory, falling back to the default
// location under the user's home directory.
func (s StorageConfig) ResolvedDir() (string, error) {
	if s.Dir != "" {
		return s.Dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".simcast"), nil
}

// LoggingConfig configures simcast's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "trace", "debug", "info" (default),
	// "warn" or "error". "debug" and below also activate the JSONL tick
	// logger when TickDir is set.
	Level string `json:"level" yaml:"level"`

	// TickDir is the directory the per-tick JSONL log is written to.
	// Empty disables tick logging regardless of level.
	TickDir string `json:"tick_dir,omitempty" yaml:"tick_dir,omitempty"`
}

// JobsConfig bounds the asynchronous run pool.
type JobsConfig struct {
	// MaxConcurrentRuns is the number of runs executing at once.
	MaxConcurrentRuns int `json:"max_concurrent_runs" yaml:"max_concurrent_runs"`

	// QueueCapacity is how many submitted runs may wait for a worker
	// before Submit rejects.
	QueueCapacity int `json:"queue_capacity" yaml:"queue_capacity"`
}

// ArchiveConfig controls which archive files the create command keeps.
type ArchiveConfig struct {
	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// RetentionConfig holds archive retention limits. An archive survives if
// any set limit wants it kept; unset limits do not constrain.
type RetentionConfig struct {
	// MaxCount keeps the N most recent archives. 0 means no count limit.
	MaxCount int `json:"max_count" yaml:"max_count"`

	// MaxAge keeps archives newer than this, e.g. "30d", "2w", "720h".
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	// MaxTotalSize caps the combined size, e.g. "500MB", "1GB".
	MaxTotalSize string `json:"max_total_size,omitempty" yaml:"max_total_size,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Jobs: JobsConfig{
			MaxConcurrentRuns: 2,
			QueueCapacity:     16,
		},
		Archive: ArchiveConfig{
			Retention: RetentionConfig{MaxCount: 10},
		},
	}
}

// Load loads configuration from the default locations and environment
// variables. Order: defaults -> ~/.simcast/config.yaml -> environment.
func Load() (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, ".simcast", "config.yaml")
		if _, statErr := os.Stat(path); statErr == nil {
			fileCfg, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			cfg = fileCfg
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file, layered over
// the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"": true, "trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error, or empty for default)", c.Logging.Level)
	}
	if c.Jobs.MaxConcurrentRuns < 1 {
		return fmt.Errorf("max_concurrent_runs must be at least 1, got %d", c.Jobs.MaxConcurrentRuns)
	}
	if c.Jobs.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", c.Jobs.QueueCapacity)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIMCAST_DATA_DIR"); v != "" {
		cfg.Storage.Dir = v
	}

	if v := os.Getenv("SIMCAST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("SIMCAST_TICK_LOG_DIR"); v != "" {
		cfg.Logging.TickDir = v
	}

	if v := os.Getenv("SIMCAST_MAX_CONCURRENT_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Jobs.MaxConcurrentRuns = n
		}
	}

	if v := os.Getenv("SIMCAST_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Jobs.QueueCapacity = n
		}
	}
}
