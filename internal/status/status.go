// Package status provides a thread-safe view of the lamp for the web front
// end: the current state, the bounded change history and link details.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/lamp-relay/internal/logic"
)

// DefaultHistoryLimit bounds the change history when Config leaves it unset.
const DefaultHistoryLimit = 50

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/network from status.
type NetworkInfo struct {
	Mode     string
	Hostname string
	SSID     string
	IP       string
	MAC      string
}

// UpdateInfo mirrors the firmware update session.
type UpdateInfo struct {
	Status       string
	BytesWritten int64
	Error        string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs       int64
	DebounceMs   int64
	Broker       string
	Topic        string
	HTTPAddr     string
	HistoryLimit int
}

// Entry is one state change.
type Entry struct {
	At    time.Time
	State logic.State
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; History is a private copy.
type Snapshot struct {
	State         logic.State
	History       []Entry // most recent first
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Update        *UpdateInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. It implements
// logic.StatusSink.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	limit int
	now   func() time.Time

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Tracker{
		snap: Snapshot{
			State:     logic.StateOff,
			StartTime: startTime,
			Config:    cfg,
		},
		limit: limit,
		now:   time.Now,
		subs:  make(map[chan struct{}]struct{}),
	}
}

// setClock replaces the time source used for history entries and snapshots.
func (t *Tracker) setClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// OnStateChanged records s and prepends a history entry, evicting the
// oldest beyond the limit. Called from the control loop on every SetState.
func (t *Tracker) OnStateChanged(s logic.State) {
	t.mu.Lock()
	t.snap.State = s
	h := make([]Entry, 0, min(len(t.snap.History)+1, t.limit))
	h = append(h, Entry{At: t.now(), State: s})
	for _, e := range t.snap.History {
		if len(h) == t.limit {
			break
		}
		h = append(h, e)
	}
	t.snap.History = h
	t.mu.Unlock()

	t.notify()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	changed := t.snap.MQTTConnected != connected
	t.snap.MQTTConnected = connected
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
	t.notify()
}

// SetUpdate sets the update session info.
func (t *Tracker) SetUpdate(info *UpdateInfo) {
	t.mu.Lock()
	t.snap.Update = info
	t.mu.Unlock()
	t.notify()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.History = append([]Entry(nil), t.snap.History...)
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}

// Subscribe returns a channel that receives a signal after every change.
// Signals coalesce; call the returned func to unsubscribe.
func (t *Tracker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	t.subMu.Lock()
	t.subs[ch] = struct{}{}
	t.subMu.Unlock()

	return ch, func() {
		t.subMu.Lock()
		delete(t.subs, ch)
		t.subMu.Unlock()
	}
}

func (t *Tracker) notify() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
