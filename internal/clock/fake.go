package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manually advanced clock for tests. Sleep advances the clock
// instead of blocking.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	Sleeps []time.Duration
}

// NewFake creates a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Sleep records d and advances the clock by it. It still honours ctx.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.Sleeps = append(f.Sleeps, d)
	f.now = f.now.Add(d)
	f.mu.Unlock()
	return nil
}
