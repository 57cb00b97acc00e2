package gpio

import (
	"errors"
	"testing"
)

func TestFakeInputRead(t *testing.T) {
	f := NewFakeInput([]bool{false, true, true})

	want := []bool{false, true, true, true} // last sample repeats
	for i, w := range want {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("read %d: got %v, want %v", i, got, w)
		}
	}
}

func TestFakeInputNoSamples(t *testing.T) {
	f := NewFakeInput(nil)

	if _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeInputError(t *testing.T) {
	f := NewFakeInput([]bool{true})
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeInputReset(t *testing.T) {
	f := NewFakeInput([]bool{true, false})

	f.Read()
	f.Reset()

	got, _ := f.Read()
	if got != true {
		t.Errorf("after reset: got %v, want true", got)
	}
}

func TestFakeOutputRecordsLevels(t *testing.T) {
	f := NewFakeOutput()

	if f.High() {
		t.Error("never-driven output should read low")
	}

	f.Set(true)
	f.Set(false)
	f.Set(true)

	if len(f.Levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(f.Levels))
	}
	if !f.High() {
		t.Error("expected last level high")
	}
}

func TestFakeOutputError(t *testing.T) {
	f := NewFakeOutput()
	f.SetError = errors.New("line busy")

	if err := f.Set(true); err == nil {
		t.Error("expected error")
	}
	if len(f.Levels) != 0 {
		t.Errorf("failed Set should not record a level, got %d", len(f.Levels))
	}
}
