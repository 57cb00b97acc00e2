package network

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestScannerLifecycle(t *testing.T) {
	radio := NewFakeRadio()
	radio.Visible = []AvailableNetwork{{SSID: "casa", RSSI: -48}, {SSID: "vizinho", RSSI: -80}}
	radio.ScanGate = make(chan struct{})
	s := NewScanner(radio, zaptest.NewLogger(t))

	if s.scanState() != ScanNever {
		t.Fatalf("initial state: %v", s.scanState())
	}

	// First call starts a scan and returns nothing.
	if got := s.Results(); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
	if s.scanState() != ScanRunning {
		t.Fatalf("expected running, got %v", s.scanState())
	}

	// Still running: empty, no second scan started.
	if got := s.Results(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list while running, got %v", got)
	}

	close(radio.ScanGate)
	s.Wait()
	if s.scanState() != ScanDone {
		t.Fatalf("expected done, got %v", s.scanState())
	}

	got := s.Results()
	if len(got) != 2 || got[0].SSID != "casa" {
		t.Fatalf("results: %v", got)
	}

	// Results are handed out once and the next scan is started.
	s.Wait()
	if radio.Scans != 2 {
		t.Errorf("scans: got %d, want 2", radio.Scans)
	}
}

func TestScannerFailureRestarts(t *testing.T) {
	radio := NewFakeRadio()
	radio.ScanError = errors.New("busy")
	s := NewScanner(radio, zaptest.NewLogger(t))

	s.Results()
	s.Wait()
	if s.scanState() != ScanFailed {
		t.Fatalf("expected failed, got %v", s.scanState())
	}

	radio.ScanError = nil
	radio.Visible = []AvailableNetwork{{SSID: "casa", RSSI: -60}}
	if got := s.Results(); len(got) != 0 {
		t.Fatalf("failed scan should return empty and restart, got %v", got)
	}
	s.Wait()
	if got := s.Results(); len(got) != 1 {
		t.Fatalf("expected results after retry, got %v", got)
	}
	s.Wait()
}
