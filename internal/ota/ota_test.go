package ota

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

// countingReader records how much of the stream was consumed.
type countingReader struct {
	r    io.Reader
	read int
	eof  bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	if err == io.EOF {
		c.eof = true
	}
	return n, err
}

func image(n int) []byte {
	return bytes.Repeat([]byte{0xE9}, n)
}

func TestReceiveSuccess(t *testing.T) {
	flash := &FakeFlash{}
	m := NewManager(flash, zaptest.NewLogger(t))

	if m.Session().Status != Idle {
		t.Fatalf("initial status: %v", m.Session().Status)
	}

	data := image(10000)
	s, err := m.Receive(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if s.Status != Done {
		t.Errorf("status: got %v, want done", s.Status)
	}
	if s.BytesWritten != 10000 {
		t.Errorf("bytes: got %d", s.BytesWritten)
	}
	if !flash.Committed || !bytes.Equal(flash.Image.Bytes(), data) {
		t.Error("image not committed intact")
	}
}

func TestReceiveShortWriteFailsAndDrains(t *testing.T) {
	flash := &FakeFlash{Capacity: 5000}
	m := NewManager(flash, zaptest.NewLogger(t))

	r := &countingReader{r: bytes.NewReader(image(20000))}
	s, err := m.Receive(r)
	if err == nil {
		t.Fatal("expected an error")
	}
	if s.Status != Failed {
		t.Errorf("status: got %v, want failed", s.Status)
	}
	if !r.eof || r.read != 20000 {
		t.Errorf("stream not drained: read %d, eof %v", r.read, r.eof)
	}
	if flash.Committed {
		t.Error("partial image must not be committed")
	}
	if !flash.Aborted {
		t.Error("partial image must be discarded")
	}
	if s.Error == "" {
		t.Error("expected error text in session")
	}
}

func TestReceiveFinalizeFailure(t *testing.T) {
	flash := &FakeFlash{FinalizeError: errors.New("bad image")}
	m := NewManager(flash, zaptest.NewLogger(t))

	s, err := m.Receive(bytes.NewReader(image(100)))
	if err == nil {
		t.Fatal("expected error")
	}
	if s.Status != Failed || !flash.Aborted {
		t.Errorf("status %v aborted %v", s.Status, flash.Aborted)
	}
}

func TestReceiveBeginFailureDrains(t *testing.T) {
	flash := &FakeFlash{BeginError: errors.New("no slot")}
	m := NewManager(flash, zaptest.NewLogger(t))

	r := &countingReader{r: strings.NewReader("firmware")}
	s, err := m.Receive(r)
	if err == nil || s.Status != Failed {
		t.Fatalf("got %v, %v", s.Status, err)
	}
	if !r.eof {
		t.Error("stream not drained")
	}
}

func TestReceiveEmptyImage(t *testing.T) {
	m := NewManager(&FakeFlash{}, zaptest.NewLogger(t))
	s, err := m.Receive(bytes.NewReader(nil))
	if err == nil || s.Status != Failed {
		t.Fatalf("empty upload: got %v, %v", s.Status, err)
	}
}

func TestBeginWhileReceivingIsBusy(t *testing.T) {
	m := NewManager(&FakeFlash{}, zaptest.NewLogger(t))
	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := m.Begin(); !errors.Is(err, ErrBusy) {
		t.Errorf("second Begin: got %v, want ErrBusy", err)
	}
	if err := m.Write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := m.End(); err != nil {
		t.Fatal(err)
	}
	// A finished session can be followed by a new one.
	if err := m.Begin(); err != nil {
		t.Errorf("Begin after done: %v", err)
	}
}

func TestWriteAfterFailureIsDiscarded(t *testing.T) {
	flash := &FakeFlash{Capacity: 2}
	m := NewManager(flash, zaptest.NewLogger(t))
	m.Begin()

	if err := m.Write([]byte{1, 2, 3}); !errors.Is(err, ErrShortWrite) {
		t.Fatalf("got %v, want ErrShortWrite", err)
	}
	if err := m.Write([]byte{4}); err != nil {
		t.Errorf("write while draining should be accepted, got %v", err)
	}
	if got := m.Session().BytesWritten; got != 2 {
		t.Errorf("bytes: got %d, want 2", got)
	}
	if err := m.End(); err == nil {
		t.Error("End after failure must report it")
	}
}

func TestEndWithoutSession(t *testing.T) {
	m := NewManager(&FakeFlash{}, zaptest.NewLogger(t))
	if err := m.End(); !errors.Is(err, ErrNotReceiving) {
		t.Errorf("got %v", err)
	}
}

func TestStatusString(t *testing.T) {
	for s, want := range map[Status]string{
		Idle: "idle", Receiving: "receiving", Committing: "committing",
		Failed: "failed", Done: "done", Status(42): "Status(42)",
	} {
		if got := s.String(); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}
