package ota

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"go.uber.org/zap/zaptest"
)

// executable returns an ELF image to install: the running test binary.
func executable(t *testing.T) []byte {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("slot images are ELF executables")
	}
	path, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestSlotFlashDefaults(t *testing.T) {
	f, err := NewSlotFlash(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if f.Active() != SlotA || f.Inactive() != SlotB {
		t.Errorf("active %s inactive %s", f.Active(), f.Inactive())
	}
}

func TestSlotFlashInstallSwitchesBootSlot(t *testing.T) {
	img := executable(t)
	dir := t.TempDir()
	f, err := NewSlotFlash(dir)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(f, zaptest.NewLogger(t))

	s, err := m.Receive(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if s.Status != Done {
		t.Fatalf("status: %v", s.Status)
	}
	if f.Active() != SlotB {
		t.Errorf("active after update: %s, want b", f.Active())
	}
	got, err := os.ReadFile(f.ImagePath(SlotB))
	if err != nil || !bytes.Equal(got, img) {
		t.Errorf("installed image differs (err %v)", err)
	}
	if _, err := os.Stat(f.ImagePath(SlotB) + ".part"); !os.IsNotExist(err) {
		t.Error("staging file left behind")
	}

	// The next update goes to the other slot.
	if f.Inactive() != SlotA {
		t.Errorf("inactive: %s", f.Inactive())
	}
}

func TestSlotFlashRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	f, err := NewSlotFlash(dir)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(f, zaptest.NewLogger(t))

	s, err := m.Receive(bytes.NewReader([]byte("definitely not firmware")))
	if err == nil || s.Status != Failed {
		t.Fatalf("got %v, %v", s.Status, err)
	}
	if f.Active() != SlotA {
		t.Error("boot slot must not change on failure")
	}
	if _, err := os.Stat(filepath.Join(dir, "boot")); !os.IsNotExist(err) {
		t.Error("boot marker written on failure")
	}
	if _, err := os.Stat(f.ImagePath(SlotB) + ".part"); !os.IsNotExist(err) {
		t.Error("partial image not discarded")
	}
}

func TestSlotFlashBootImageFollowsUpdate(t *testing.T) {
	img := executable(t)
	f, err := NewSlotFlash(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if path, ok := f.BootImage(); ok {
		t.Fatalf("boot image before any update: %s", path)
	}

	if _, err := NewManager(f, zaptest.NewLogger(t)).Receive(bytes.NewReader(img)); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	path, ok := f.BootImage()
	if !ok || path != f.ImagePath(SlotB) {
		t.Errorf("boot image: got %q %v, want %q", path, ok, f.ImagePath(SlotB))
	}
}
