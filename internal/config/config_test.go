package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.HistoryDepth)
	assert.Equal(t, 5*time.Minute, cfg.CheckoutTTL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "root", cfg.Document)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REWIND_LOG_LEVEL", "debug")
	t.Setenv("REWIND_HISTORY_DEPTH", "7")
	t.Setenv("REWIND_REDIS_ADDR", "localhost:6379")
	t.Setenv("REWIND_CHECKOUT_TTL", "30s")
	t.Setenv("REWIND_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("REWIND_DOCUMENT", "form1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Config{
		LogLevel:     "debug",
		HistoryDepth: 7,
		RedisAddr:    "localhost:6379",
		CheckoutTTL:  30 * time.Second,
		HTTPAddr:     "127.0.0.1:9000",
		Document:     "form1",
	}, cfg)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		t.Setenv("REWIND_HISTORY_DEPTH", "many")
		_, err := Load()
		assert.ErrorContains(t, err, "parse env:")
	})
	t.Run("non-positive depth", func(t *testing.T) {
		t.Setenv("REWIND_HISTORY_DEPTH", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "must be positive")
	})
}

func TestLevel_Unknown(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "chatty"}.Level())
	assert.Equal(t, slog.LevelWarn, Config{LogLevel: "WARN"}.Level())
}
