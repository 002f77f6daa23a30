// Package config reads the TRIAGE_* environment. Command-line flags take
// precedence and are applied by the CLI on top of the values loaded here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v8"
)

// Config holds settings taken from the environment.
type Config struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel  string `env:"TRIAGE_LOG_LEVEL" envDefault:"info" json:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	LogPrefix string `env:"TRIAGE_LOG_PREFIX" envDefault:"triage " json:"log_prefix"`
	// LogToFile sends debug logs to a timestamped file in LogDir instead of stderr.
	LogToFile bool   `env:"TRIAGE_LOG_TO_FILE" json:"log_to_file"`
	LogDir    string `env:"TRIAGE_LOG_DIR" json:"log_dir,omitempty"`

	NoColor bool `env:"TRIAGE_NO_COLOR" json:"no_color"`
	// MaxResults overrides every per-category cap when positive.
	MaxResults int `env:"TRIAGE_MAX_RESULTS" json:"max_results,omitempty"`
	// TablesDir holds extra or overriding pattern tables.
	TablesDir string `env:"TRIAGE_TABLES_DIR" json:"tables_dir,omitempty"`
	// Profile serves net/http/pprof on localhost:6060.
	Profile bool `env:"TRIAGE_PROFILE" json:"profile"`
}

// Load reads the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg.normalize()
}

// LoadFrom reads settings from environ instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg.normalize()
}

func (c Config) normalize() (Config, error) {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "":
		c.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("TRIAGE_LOG_LEVEL: unknown level %q", c.LogLevel)
	}
	if c.MaxResults < 0 {
		return Config{}, fmt.Errorf("TRIAGE_MAX_RESULTS: must not be negative, got %d", c.MaxResults)
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir()
	}
	return c, nil
}

// Debug reports whether debug logging is enabled.
func (c Config) Debug() bool { return c.LogLevel == "debug" }

// DefaultLogDir is where log files go when TRIAGE_LOG_DIR is unset.
func DefaultLogDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "triage", "logs")
	}
	return filepath.Join(os.TempDir(), "triage-logs")
}
