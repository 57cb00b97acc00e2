package ota

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Slot names. The boot marker holds the name of the slot to run.
const (
	SlotA      = "a"
	SlotB      = "b"
	bootMarker = "boot"
)

// SlotFlash keeps two executable images in dir and a marker naming the
// active one. An update writes the inactive slot and flips the marker.
type SlotFlash struct {
	dir string
}

// NewSlotFlash uses dir, creating it if needed.
func NewSlotFlash(dir string) (*SlotFlash, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create slot dir: %w", err)
	}
	return &SlotFlash{dir: dir}, nil
}

// Active returns the slot named by the boot marker, SlotA if unset.
func (f *SlotFlash) Active() string {
	data, err := os.ReadFile(filepath.Join(f.dir, bootMarker))
	if err != nil {
		return SlotA
	}
	if strings.TrimSpace(string(data)) == SlotB {
		return SlotB
	}
	return SlotA
}

// Inactive returns the slot an update would be written to.
func (f *SlotFlash) Inactive() string {
	if f.Active() == SlotA {
		return SlotB
	}
	return SlotA
}

// ImagePath returns the path of slot's image.
func (f *SlotFlash) ImagePath(slot string) string {
	return filepath.Join(f.dir, slot)
}

// BootImage returns the image installed in the active slot. ok is false
// until an update has been installed there.
func (f *SlotFlash) BootImage() (path string, ok bool) {
	path = f.ImagePath(f.Active())
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// Begin truncates a staging file for the inactive slot.
func (f *SlotFlash) Begin() (Writer, error) {
	slot := f.Inactive()
	part := f.ImagePath(slot) + ".part"
	file, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return nil, fmt.Errorf("open slot %s: %w", slot, err)
	}
	return &slotWriter{flash: f, slot: slot, part: part, file: file}, nil
}

type slotWriter struct {
	flash *SlotFlash
	slot  string
	part  string
	file  *os.File
	n     int64
}

func (w *slotWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.n += int64(n)
	return n, err
}

func (w *slotWriter) Finalize() error {
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("sync image: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close image: %w", err)
	}
	if err := verifyImage(w.part, w.n); err != nil {
		return err
	}
	if err := os.Rename(w.part, w.flash.ImagePath(w.slot)); err != nil {
		return fmt.Errorf("install image: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(w.flash.dir, bootMarker), []byte(w.slot+"\n")); err != nil {
		return fmt.Errorf("switch boot slot: %w", err)
	}
	return nil
}

func (w *slotWriter) Abort() error {
	w.file.Close()
	if err := os.Remove(w.part); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// verifyImage accepts only a complete executable ELF file.
func verifyImage(path string, size int64) error {
	if size == 0 {
		return errors.New("empty image")
	}
	ef, err := elf.Open(path)
	if err != nil {
		return fmt.Errorf("verify image: %w", err)
	}
	defer ef.Close()
	if ef.Type != elf.ET_EXEC && ef.Type != elf.ET_DYN {
		return fmt.Errorf("verify image: not an executable (%s)", ef.Type)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
