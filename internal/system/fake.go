package system

import (
	"sync"
	"time"
)

// Restart is one recorded RestartAfter call.
type Restart struct {
	Delay  time.Duration
	Reason string
}

// FakeRestarter records restart requests.
type FakeRestarter struct {
	mu       sync.Mutex
	restarts []Restart
}

func (f *FakeRestarter) RestartAfter(delay time.Duration, reason string) {
	f.mu.Lock()
	f.restarts = append(f.restarts, Restart{Delay: delay, Reason: reason})
	f.mu.Unlock()
}

// Restarts returns the recorded requests.
func (f *FakeRestarter) Restarts() []Restart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Restart(nil), f.restarts...)
}
