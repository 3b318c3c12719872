package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter provides rate limiting functionality
type Limiter struct {
	limiter *rate.Limiter
	enabled bool
}

// NewLimiter creates a new rate limiter
// qps: requests per second, 0 means no limit
func NewLimiter(qps int) *Limiter {
	if qps <= 0 {
		return &Limiter{enabled: false}
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(qps), qps),
		enabled: true,
	}
}

// Wait blocks until the limiter permits an event
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || !l.enabled {
		return nil
	}
	return l.limiter.Wait(ctx)
}
