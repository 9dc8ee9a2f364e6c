package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter builds a token bucket holding cfg.Burst tokens that refills
// completely once per cfg.RefillInterval.
func newRateLimiter(cfg RateLimitConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst)
}
