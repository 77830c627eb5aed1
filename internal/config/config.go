// Package config loads ccom configuration.
//
// Configuration precedence (highest to lowest):
//  1. CLI flags (applied by the caller through MergeWithFlags)
//  2. Environment variables (CCOM_ORCHESTRATOR_MAX_PARALLELISM, CCOM_LOG_LEVEL, ...)
//  3. YAML config file (.ccom/config.yaml)
//  4. Defaults
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/debashishroy00/ccom/internal/backend"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "CCOM_"

const maxConfigFileSize = 1024 * 1024

// OrchestratorConfig tunes planning and execution.
type OrchestratorConfig struct {
	// MaxParallelism bounds concurrent tasks within one wave
	MaxParallelism int `koanf:"max_parallelism"`

	// DefaultTimeout applies to tasks without their own timeout
	DefaultTimeout time.Duration `koanf:"default_timeout"`

	// FallbackEnabled lets hybrid mode retry native raises through legacy
	FallbackEnabled bool `koanf:"fallback_enabled"`

	// HistorySize is the number of runs kept for metrics
	HistorySize int `koanf:"history_size"`

	// Mode is the initial backend mode (native, legacy, hybrid)
	Mode string `koanf:"mode"`
}

// LogConfig controls console and file logging.
type LogConfig struct {
	Level string `koanf:"level"`
	Dir   string `koanf:"dir"`
}

// AuditConfig controls the sqlite audit trail.
type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	DBPath  string `koanf:"db_path"`
}

// MetricsConfig controls Prometheus export.
type MetricsConfig struct {
	// Textfile is a node-exporter textfile path; empty disables export
	Textfile string `koanf:"textfile"`
}

// DefinitionsConfig points at an optional task definitions file.
type DefinitionsConfig struct {
	File string `koanf:"file"`
}

// Config represents ccom configuration options
type Config struct {
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Log          LogConfig          `koanf:"log"`
	Audit        AuditConfig        `koanf:"audit"`
	Metrics      MetricsConfig      `koanf:"metrics"`
	Definitions  DefinitionsConfig  `koanf:"definitions"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxParallelism:  4,
			DefaultTimeout:  300 * time.Second,
			FallbackEnabled: true,
			HistorySize:     100,
			Mode:            "hybrid",
		},
		Log: LogConfig{
			Level: "info",
			Dir:   ".ccom/logs",
		},
		Audit: AuditConfig{
			Enabled: false,
			DBPath:  ".ccom/audit.db",
		},
	}
}

// Load reads configuration from path (when the file exists) and the
// environment, layered over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	// CCOM_ORCHESTRATOR_MAX_PARALLELISM -> orchestrator.max_parallelism
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(maxParallelism *int, timeout *time.Duration, mode *string, fallback *bool, logDir *string, logLevel *string) {
	if maxParallelism != nil {
		c.Orchestrator.MaxParallelism = *maxParallelism
	}
	if timeout != nil {
		c.Orchestrator.DefaultTimeout = *timeout
	}
	if mode != nil {
		c.Orchestrator.Mode = *mode
	}
	if fallback != nil {
		c.Orchestrator.FallbackEnabled = *fallback
	}
	if logDir != nil {
		c.Log.Dir = *logDir
	}
	if logLevel != nil {
		c.Log.Level = *logLevel
	}
}

// BackendMode parses Orchestrator.Mode.
func (c *Config) BackendMode() (backend.Mode, error) {
	return backend.ParseMode(c.Orchestrator.Mode)
}

// Validate validates the configuration values
func (c *Config) Validate() error {
	if c.Orchestrator.MaxParallelism < 1 {
		return fmt.Errorf("orchestrator.max_parallelism must be >= 1, got %d", c.Orchestrator.MaxParallelism)
	}
	if c.Orchestrator.DefaultTimeout <= 0 {
		return fmt.Errorf("orchestrator.default_timeout must be > 0, got %v", c.Orchestrator.DefaultTimeout)
	}
	if c.Orchestrator.HistorySize < 1 {
		return fmt.Errorf("orchestrator.history_size must be >= 1, got %d", c.Orchestrator.HistorySize)
	}
	if _, err := c.BackendMode(); err != nil {
		return fmt.Errorf("orchestrator.mode: %w", err)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log.level %q, must be one of: trace, debug, info, warn, error", c.Log.Level)
	}

	if c.Audit.Enabled && c.Audit.DBPath == "" {
		return fmt.Errorf("audit.db_path cannot be empty when audit is enabled")
	}
	return nil
}
