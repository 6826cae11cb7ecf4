package server

import (
	"math"
	"sync"
	"time"
)

// rateLimiter is a token bucket sized by RateLimitConfig: a burst of
// cfg.Burst tokens, refilled continuously at one burst per refill interval.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens:     float64(burst),
		capacity:   float64(burst),
		refillRate: float64(burst) / interval.Seconds(),
		lastRefill: time.Now(),
	}
}

func (rl *rateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now
	if elapsed <= 0 {
		return
	}
	rl.tokens = math.Min(rl.capacity, rl.tokens+elapsed*rl.refillRate)
}

// allow consumes one token if available.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
