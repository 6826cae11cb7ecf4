package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Port)
	require.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	require.Equal(t, int64(512), cfg.MaxMessageSize)
	require.Equal(t, 100, cfg.HistoryLimit)
	require.Equal(t, 5, cfg.RateLimit.Burst)
	require.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com,https://chat.example.org")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("HISTORY_LIMIT", "25")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Port)
	require.Equal(t, []string{"https://chat.example.com", "https://chat.example.org"}, cfg.AllowedOrigins)
	require.Equal(t, int64(1024), cfg.MaxMessageSize)
	require.Equal(t, 25, cfg.HistoryLimit)
	require.Equal(t, 10, cfg.RateLimit.Burst)
	require.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
}

func TestConfigParsesOriginsWithWhitespace(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", " https://chat.example.com , https://chat.example.org ,")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, []string{"https://chat.example.com", "https://chat.example.org"}, cfg.AllowedOrigins)
}

func TestConfigClampsHistoryLimitToSendBuffer(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "10000")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, maxHistoryLimit, cfg.HistoryLimit)
}

func TestConfigSanitizesOutOfRangeValues(t *testing.T) {
	cfg := Config{
		MaxMessageSize: -1,
		HistoryLimit:   -5,
		RateLimit:      RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
	}.sanitized()

	require.Equal(t, ":8080", cfg.Port)
	require.Equal(t, int64(512), cfg.MaxMessageSize)
	require.Equal(t, 100, cfg.HistoryLimit)
	require.Equal(t, 5, cfg.RateLimit.Burst)
	require.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
}
