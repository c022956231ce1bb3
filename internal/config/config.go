// Package config loads daemon configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable overrides. Each one, when set, takes precedence
// over the corresponding file value.
const (
	EnvDBPath            = "REMEDIAN_DB_PATH"
	EnvKeyPath           = "REMEDIAN_KEY_PATH"
	EnvLogLevel          = "REMEDIAN_LOG_LEVEL"
	EnvRelaxedDurability = "REMEDIAN_RELAXED_DURABILITY"
	EnvCleanGraceSec     = "REMEDIAN_CLEAN_GRACE_SEC"
)

// Config holds daemon runtime configuration.
type Config struct {
	// DBPath locates the SQLite database file.
	DBPath string

	// KeyPath locates the Ed25519 signing key file. A missing file is
	// generated on first start. Empty means an ephemeral in-memory key.
	KeyPath string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// RelaxedDurability trades crash durability of the most recent
	// transactions for write throughput. Off by default.
	RelaxedDurability bool

	// CleanGrace is how long past expiry a rule set row is retained
	// before CleanExpired reclaims it.
	CleanGrace time.Duration
}

// Default returns the configuration used when no file and no
// environment overrides are present.
func Default() Config {
	return Config{
		DBPath:     "remedian.db",
		LogLevel:   "info",
		CleanGrace: 24 * time.Hour,
	}
}

// fileConfig is the YAML shape of the config file. Durations are
// written as strings ("24h", "1h30m"); yaml cannot decode those into
// time.Duration directly.
type fileConfig struct {
	DBPath            *string `yaml:"db_path"`
	KeyPath           *string `yaml:"key_path"`
	LogLevel          *string `yaml:"log_level"`
	RelaxedDurability *bool   `yaml:"relaxed_durability"`
	CleanGrace        *string `yaml:"clean_grace"`
}

// Load reads configuration from the YAML file at path (optional: a
// missing file yields defaults), applies environment overrides, and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			var fc fileConfig
			if err := yaml.Unmarshal(raw, &fc); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
			if err := fc.apply(&cfg); err != nil {
				return Config{}, err
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (fc fileConfig) apply(cfg *Config) error {
	if fc.DBPath != nil {
		cfg.DBPath = *fc.DBPath
	}
	if fc.KeyPath != nil {
		cfg.KeyPath = *fc.KeyPath
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.RelaxedDurability != nil {
		cfg.RelaxedDurability = *fc.RelaxedDurability
	}
	if fc.CleanGrace != nil {
		d, err := time.ParseDuration(*fc.CleanGrace)
		if err != nil {
			return fmt.Errorf("config: parse clean_grace: %w", err)
		}
		cfg.CleanGrace = d
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvKeyPath); v != "" {
		cfg.KeyPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvRelaxedDurability); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RelaxedDurability = b
		}
	}
	if v := os.Getenv(EnvCleanGraceSec); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec >= 0 {
			cfg.CleanGrace = time.Duration(sec) * time.Second
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	if c.CleanGrace < 0 {
		return fmt.Errorf("config: clean_grace must not be negative")
	}
	return nil
}
