// Package config loads the service configuration from a YAML file with
// environment overrides for deployment settings.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Listen   string        `mapstructure:"listen"`
	LogLevel string        `mapstructure:"log_level"`
	Store    StoreConfig   `mapstructure:"store"`
	Cache    CacheConfig   `mapstructure:"cache"`
	Session  SessionConfig `mapstructure:"session"`
}

// StoreConfig selects and configures the durable store.
type StoreConfig struct {
	// Driver is one of "postgres", "sqlite", "memory".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig configures the optional Redis cache.
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:   ":8080",
		LogLevel: "info",
		Store: StoreConfig{
			Driver: "memory",
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Session: SessionConfig{
			CacheTTL:          30 * time.Minute,
			KeepAliveInterval: 30 * time.Second,
		},
	}
}

// Load reads the YAML file at path (if non-empty) on top of the defaults,
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}

		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}

		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			WeaklyTypedInput: true,
			Result:           &cfg,
		})
		if err != nil {
			return cfg, fmt.Errorf("build config decoder: %w", err)
		}
		if err := decoder.Decode(raw); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ATTEMPTS_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("ATTEMPTS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ATTEMPTS_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("ATTEMPTS_DATABASE_URL"); v != "" {
		cfg.Store.DSN = v
		if cfg.Store.Driver == "" || cfg.Store.Driver == "memory" {
			cfg.Store.Driver = "postgres"
		}
	}
	if v := os.Getenv("ATTEMPTS_REDIS_ADDR"); v != "" {
		cfg.Cache.Enabled = true
		cfg.Cache.Addr = v
	}
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("store driver %q requires a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// SlogLevel maps the configured level name onto slog.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
