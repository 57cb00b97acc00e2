package network

import (
	"context"
	"sync"
)

// FakeRadio is a scripted Radio for tests.
type FakeRadio struct {
	mu sync.Mutex

	// ConnectAfterPolls is how many StationConnected calls return false
	// before the link comes up. Negative means never.
	ConnectAfterPolls int

	JoinError error
	APError   error
	ScanError error

	Local   string
	APAddr  string
	HWAddr  string
	Signal  int
	Visible []AvailableNetwork

	// Recorded calls.
	Hostname string
	Joined   []Credentials
	APStarts int
	APSSID   string
	APPass   string
	Polls    int
	Scans    int

	// ScanGate, if set, blocks Scan until it is closed.
	ScanGate chan struct{}
}

// NewFakeRadio returns a radio that connects on the first poll.
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{
		Local:  "192.168.0.50",
		APAddr: "192.168.4.1",
		HWAddr: "24:6F:28:AA:BB:CC",
		Signal: -58,
	}
}

func (f *FakeRadio) SetHostname(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Hostname = name
	return nil
}

func (f *FakeRadio) JoinStation(_ context.Context, c Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Joined = append(f.Joined, c)
	return f.JoinError
}

func (f *FakeRadio) StationConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Polls++
	if f.ConnectAfterPolls < 0 {
		return false
	}
	return f.Polls > f.ConnectAfterPolls
}

func (f *FakeRadio) LocalAddr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Local
}

func (f *FakeRadio) StartAccessPoint(ssid, pass string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.APStarts++
	f.APSSID = ssid
	f.APPass = pass
	return f.APError
}

func (f *FakeRadio) AccessPointAddr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.APAddr
}

func (f *FakeRadio) MAC() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.HWAddr
}

func (f *FakeRadio) RSSI() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Signal
}

func (f *FakeRadio) Scan(ctx context.Context) ([]AvailableNetwork, error) {
	f.mu.Lock()
	gate := f.ScanGate
	f.Scans++
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScanError != nil {
		return nil, f.ScanError
	}
	return append([]AvailableNetwork(nil), f.Visible...), nil
}
