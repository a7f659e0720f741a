package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls to a rate-limited provider. A nil *RateLimiter
// never blocks.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter that allows perMinute operations per
// minute with no bursting. It returns nil when perMinute is not positive.
func NewRateLimiter(perMinute int) *RateLimiter {
	return NewBurstRateLimiter(perMinute, 1)
}

// NewBurstRateLimiter creates a RateLimiter that allows perMinute operations
// per minute and lets up to burst operations through back to back.
func NewBurstRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	every := time.Minute / time.Duration(perMinute)
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(every), max(burst, 1))}
}

// Wait blocks until a token is available or the context is done. It fails
// early when ctx's deadline would pass before the next token.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil || ctx.Err() != nil {
		return ctx.Err()
	}
	return rl.limiter.Wait(ctx)
}
