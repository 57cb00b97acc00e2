// Package clock provides an injectable time source and the rate limiter used
// by components that retry on a schedule.
package clock

import (
	"context"
	"time"
)

// Clock is a monotonic time source that can also wait.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// Sleep waits for d or for ctx to be cancelled.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Throttle allows one attempt per interval.
// The zero lastAttempt means the first call to Allow always succeeds.
// Not safe for concurrent use.
type Throttle struct {
	interval    time.Duration
	lastAttempt time.Time
	attempted   bool
}

// NewThrottle creates a Throttle with the given minimum spacing between attempts.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Allow reports whether an attempt may be made at now, and if so records it.
func (t *Throttle) Allow(now time.Time) bool {
	if t.attempted && now.Sub(t.lastAttempt) < t.interval {
		return false
	}
	t.lastAttempt = now
	t.attempted = true
	return true
}

// Reset forgets the last attempt so the next Allow succeeds.
func (t *Throttle) Reset() {
	t.attempted = false
	t.lastAttempt = time.Time{}
}

// Interval returns the configured spacing.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}
