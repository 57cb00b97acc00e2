// Package ota receives a firmware image as a byte stream, writes it to the
// inactive slot and marks it bootable only if the whole image verified.
package ota

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// chunkSize is the write granularity of Receive.
const chunkSize = 4 << 10

var (
	// ErrBusy is returned when an update is already in progress.
	ErrBusy = errors.New("update already in progress")

	// ErrShortWrite means the slot accepted fewer bytes than offered.
	ErrShortWrite = errors.New("short write to update slot")

	// ErrNotReceiving is returned by End without an active session.
	ErrNotReceiving = errors.New("no update in progress")
)

// Status is the update session state.
type Status int

const (
	Idle Status = iota
	Receiving
	Committing
	Failed
	Done
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Receiving:
		return "receiving"
	case Committing:
		return "committing"
	case Failed:
		return "failed"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Session is a snapshot of the current update.
type Session struct {
	Status       Status `json:"-"`
	BytesWritten int64  `json:"bytes_written"`
	Error        string `json:"error,omitempty"`
}

// Writer streams one image into a slot.
type Writer interface {
	io.Writer
	// Finalize verifies the image and makes it the next boot target.
	Finalize() error
	// Abort discards the partial image.
	Abort() error
}

// Flash opens a Writer on the inactive slot.
type Flash interface {
	Begin() (Writer, error)
}

// Manager runs update sessions one at a time. Begin, Write and End are
// called from one request goroutine; Session may be read concurrently.
type Manager struct {
	flash Flash
	log   *zap.Logger

	mu      sync.Mutex
	session Session
	w       Writer
}

// NewManager creates an idle Manager.
func NewManager(flash Flash, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{flash: flash, log: log.Named("ota")}
}

// Session returns a copy of the session state.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Begin opens the inactive slot and enters Receiving.
func (m *Manager) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Status == Receiving || m.session.Status == Committing {
		return ErrBusy
	}

	w, err := m.flash.Begin()
	if err != nil {
		m.session = Session{Status: Failed, Error: err.Error()}
		m.log.Error("begin failed", zap.Error(err))
		return fmt.Errorf("open update slot: %w", err)
	}

	m.w = w
	m.session = Session{Status: Receiving}
	m.log.Info("update started")
	return nil
}

// Write appends p to the image. After a failure later chunks are accepted
// and discarded so the sender can finish.
func (m *Manager) Write(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Status != Receiving {
		return nil
	}

	n, err := m.w.Write(p)
	m.session.BytesWritten += int64(n)
	if err == nil && n != len(p) {
		err = ErrShortWrite
	}
	if err != nil {
		m.log.Error("write mismatch", zap.Int("offered", len(p)), zap.Int("written", n),
			zap.Int64("total", m.session.BytesWritten), zap.Error(err))
		m.failLocked(err)
		return err
	}
	return nil
}

// End finalizes the image. It returns the session error, if any.
func (m *Manager) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.session.Status {
	case Failed:
		return fmt.Errorf("update failed: %s", m.session.Error)
	case Receiving:
	default:
		return ErrNotReceiving
	}

	m.session.Status = Committing
	if err := m.w.Finalize(); err != nil {
		m.log.Error("finalize failed", zap.Int64("bytes", m.session.BytesWritten), zap.Error(err))
		m.failLocked(err)
		return fmt.Errorf("finalize update: %w", err)
	}

	m.w = nil
	m.session.Status = Done
	m.log.Info("update complete", zap.Int64("bytes", m.session.BytesWritten))
	return nil
}

// Receive runs a whole session over r. The stream is always read to the
// end, even after a failure.
func (m *Manager) Receive(r io.Reader) (Session, error) {
	if err := m.Begin(); err != nil {
		if errors.Is(err, ErrBusy) {
			return m.Session(), err
		}
		io.Copy(io.Discard, r)
		return m.Session(), err
	}

	buf := make([]byte, chunkSize)
	var writeErr error
	for {
		n, err := r.Read(buf)
		if n > 0 && writeErr == nil {
			writeErr = m.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			m.mu.Lock()
			if m.session.Status == Receiving {
				m.failLocked(fmt.Errorf("read upload: %w", err))
			}
			m.mu.Unlock()
			return m.Session(), err
		}
	}

	err := m.End()
	return m.Session(), err
}

func (m *Manager) failLocked(err error) {
	m.session.Status = Failed
	m.session.Error = err.Error()
	if m.w != nil {
		if aerr := m.w.Abort(); aerr != nil {
			m.log.Warn("discard partial image failed", zap.Error(aerr))
		}
		m.w = nil
	}
}
