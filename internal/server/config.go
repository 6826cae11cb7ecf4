// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat relay.
package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	sendBufferSize = 256
	// Welcome plus replay must fit one client's send buffer, so the
	// retention bound is capped one below it.
	maxHistoryLimit = sendBufferSize - 1
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
}

// Config holds the relay configuration, populated from the environment.
type Config struct {
	Port            string        `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins  []string      `env:"-"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=512"`
	HistoryPath     string        `env:"HISTORY_PATH,default=chat-history"`
	HistoryLimit    int           `env:"HISTORY_LIMIT,default=100"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	RateLimit       RateLimitConfig
}

// NewConfig returns a Config populated with default values for all settings.
func NewConfig() Config {
	return Config{
		Port:            ":8080",
		AllowedOrigins:  []string{"http://localhost:8080"},
		MaxMessageSize:  512,
		HistoryPath:     "chat-history",
		HistoryLimit:    100,
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
	}
}

// NewConfigFromEnv builds a Config from environment variables, falling back
// to defaults for anything unset.
func NewConfigFromEnv() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("reading config from environment: %w", err)
	}
	cfg.AllowedOrigins = parseOrigins(os.Getenv("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:8080"}
	}
	return cfg.sanitized(), nil
}

// parseOrigins splits a comma-separated origin list, trimming whitespace
// and dropping empty entries.
func parseOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// sanitized clamps out-of-range values back to their defaults.
func (c Config) sanitized() Config {
	if c.Port == "" {
		c.Port = ":8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 512
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 100
	}
	if c.HistoryLimit > maxHistoryLimit {
		c.HistoryLimit = maxHistoryLimit
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	return c
}
