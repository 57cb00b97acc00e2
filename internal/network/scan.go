package network

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ScanState tracks the background scan.
type ScanState int

const (
	ScanNever ScanState = iota
	ScanRunning
	ScanDone
	ScanFailed
)

const defaultScanTimeout = 15 * time.Second

// Scanner runs Wi-Fi scans in the background for the configuration page.
// Each completed result set is handed out once.
type Scanner struct {
	radio   Radio
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	state   ScanState
	results []AvailableNetwork
	wg      sync.WaitGroup
}

// NewScanner creates an idle Scanner.
func NewScanner(radio Radio, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{
		radio:   radio,
		timeout: defaultScanTimeout,
		log:     log.Named("scan"),
	}
}

func (s *Scanner) scanState() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Results never blocks. While a scan runs it returns an empty list. With
// no results available it starts a scan and returns an empty list. With
// completed results it returns them, discards them and starts the next scan.
func (s *Scanner) Results() []AvailableNetwork {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case ScanRunning:
		return []AvailableNetwork{}
	case ScanDone:
		out := s.results
		s.results = nil
		s.startLocked()
		if out == nil {
			out = []AvailableNetwork{}
		}
		return out
	default:
		s.startLocked()
		return []AvailableNetwork{}
	}
}

func (s *Scanner) startLocked() {
	s.state = ScanRunning
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		nets, err := s.radio.Scan(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.log.Warn("scan failed", zap.Error(err))
			s.state = ScanFailed
			return
		}
		s.results = nets
		s.state = ScanDone
	}()
}

// Wait blocks until no scan is running.
func (s *Scanner) Wait() {
	s.wg.Wait()
}
