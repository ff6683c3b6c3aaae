// Package config loads the CLI configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration. Command-line flags override it.
type Config struct {
	LogLevel     string        `env:"REWIND_LOG_LEVEL" envDefault:"info"`
	HistoryDepth int           `env:"REWIND_HISTORY_DEPTH" envDefault:"100"`
	RedisAddr    string        `env:"REWIND_REDIS_ADDR"`
	CheckoutTTL  time.Duration `env:"REWIND_CHECKOUT_TTL" envDefault:"5m"`
	HTTPAddr     string        `env:"REWIND_HTTP_ADDR" envDefault:":8080"`
	Document     string        `env:"REWIND_DOCUMENT" envDefault:"root"`
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.HistoryDepth < 1 {
		return Config{}, fmt.Errorf("REWIND_HISTORY_DEPTH must be positive, got %d", cfg.HistoryDepth)
	}
	return cfg, nil
}

// ParseEnv loads environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Level converts the configured log level; unknown values fall back to info.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}
