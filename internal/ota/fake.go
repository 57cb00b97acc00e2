package ota

import (
	"bytes"
	"errors"
	"sync"
)

// FakeFlash records images in memory.
type FakeFlash struct {
	mu sync.Mutex

	// Capacity, if positive, truncates writes past that many bytes.
	Capacity int64

	BeginError    error
	FinalizeError error

	Image     bytes.Buffer
	Committed bool
	Aborted   bool
	Begins    int
}

func (f *FakeFlash) Begin() (Writer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Begins++
	if f.BeginError != nil {
		return nil, f.BeginError
	}
	f.Image.Reset()
	f.Committed = false
	f.Aborted = false
	return &fakeWriter{f: f}, nil
}

type fakeWriter struct {
	f *FakeFlash
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	if w.f.Capacity > 0 {
		room := w.f.Capacity - int64(w.f.Image.Len())
		if room <= 0 {
			return 0, nil
		}
		if int64(len(p)) > room {
			p = p[:room]
		}
	}
	return w.f.Image.Write(p)
}

func (w *fakeWriter) Finalize() error {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	if w.f.FinalizeError != nil {
		return w.f.FinalizeError
	}
	if w.f.Image.Len() == 0 {
		return errors.New("empty image")
	}
	w.f.Committed = true
	return nil
}

func (w *fakeWriter) Abort() error {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	w.f.Aborted = true
	w.f.Image.Reset()
	return nil
}

// Result reports the image size and outcome under the lock.
func (f *FakeFlash) Result() (size int, committed, aborted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Image.Len(), f.Committed, f.Aborted
}
