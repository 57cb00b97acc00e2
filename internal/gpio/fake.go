package gpio

import (
	"errors"
	"sync"
)

// FakeInput is a test double that returns scripted switch readings.
type FakeInput struct {
	// Samples contains scripted readings (true = closed).
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeInput creates a FakeInput with the given samples.
func NewFakeInput(samples []bool) *FakeInput {
	return &FakeInput{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeInput) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Reset rewinds to the first sample.
func (f *FakeInput) Reset() {
	f.index = 0
}

// FakeOutput records every level it is driven to.
type FakeOutput struct {
	mu sync.Mutex

	// Levels contains every value passed to Set, in order.
	Levels []bool

	// SetError, if set, will be returned by Set (the level is still recorded
	// as not applied).
	SetError error
}

// NewFakeOutput creates a FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the level.
func (f *FakeOutput) Set(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Levels = append(f.Levels, high)
	return nil
}

// High reports the last driven level (false if never driven).
func (f *FakeOutput) High() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Levels) == 0 {
		return false
	}
	return f.Levels[len(f.Levels)-1]
}
