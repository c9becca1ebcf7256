// Package ratelimit implements a fixed-window request counter keyed by
// client and operation. Counters live behind the Counter interface so a
// single instance can keep them in memory while a fleet shares them in NATS.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/clock"
)

// Counter increments the hit count of key within the window starting at
// windowStart and returns the new count.
type Counter interface {
	Incr(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int, error)
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is how long until the window resets.
	RetryAfter time.Duration
}

// Limiter allows at most limit hits per key per window.
type Limiter struct {
	counter Counter
	limit   int
	window  time.Duration
	clock   clock.Clock
}

// New returns a Limiter. A nil clock uses the system clock.
func New(counter Counter, limit int, window time.Duration, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Limiter{counter: counter, limit: limit, window: window, clock: clk}
}

// Allow counts one hit for key. The returned error is the counter's; callers
// decide whether to fail open.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.clock.Now()
	start := now.Truncate(l.window)
	d := Decision{Limit: l.limit, ResetAt: start.Add(l.window)}
	d.RetryAfter = d.ResetAt.Sub(now)

	n, err := l.counter.Incr(ctx, key, start, l.window)
	if err != nil {
		d.Allowed = true
		d.Remaining = l.limit
		return d, fmt.Errorf("rate limit counter: %w", err)
	}
	d.Allowed = n <= l.limit
	if rem := l.limit - n; rem > 0 {
		d.Remaining = rem
	}
	return d, nil
}
