package logic

import "time"

// DefaultDebounce is the minimum time the switch must be stable.
const DefaultDebounce = 50 * time.Millisecond

// Debouncer turns raw switch samples into confirmed edges.
//
// Both directions are edges: pressing and releasing a latching wall switch
// each toggle the lamp. A reading that keeps changing faster than the
// window never produces an edge.
type Debouncer struct {
	window     time.Duration
	lastRaw    bool
	lastStable bool
	lastChange time.Time
}

// NewDebouncer creates a debouncer assuming the switch starts open.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Process takes one raw sample (true = closed) and reports whether it
// completes a stable transition.
func (d *Debouncer) Process(closed bool, now time.Time) bool {
	if closed != d.lastRaw {
		d.lastChange = now
	}
	d.lastRaw = closed

	if now.Sub(d.lastChange) > d.window && closed != d.lastStable {
		d.lastStable = closed
		return true
	}
	return false
}

// Stable returns the last confirmed switch position.
func (d *Debouncer) Stable() bool {
	return d.lastStable
}
