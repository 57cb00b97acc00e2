package settings

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "settings.db")
	s, err := Open(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func TestGetReturnsDefaultWhenAbsent(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()

	wifi := s.Namespace("wifi")
	if got := wifi.Get("ssid", "uaifai_IoT"); got != "uaifai_IoT" {
		t.Errorf("Get: got %q, want default", got)
	}
}

func TestPutThenGet(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()

	wifi := s.Namespace("wifi")
	if err := wifi.Put("ssid", "MyNet"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := wifi.Get("ssid", "default"); got != "MyNet" {
		t.Errorf("Get: got %q, want MyNet", got)
	}

	// Overwrite
	if err := wifi.Put("ssid", "OtherNet"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := wifi.Get("ssid", "default"); got != "OtherNet" {
		t.Errorf("Get after overwrite: got %q, want OtherNet", got)
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()

	if err := s.Namespace("wifi").Put("pass", "secret"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := s.Namespace("other").Get("pass", "none"); got != "none" {
		t.Errorf("other namespace leaked value %q", got)
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	s, path := openTestStore(t)
	if err := s.Namespace("wifi").Put("ssid", "Persisted"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if got := s2.Namespace("wifi").Get("ssid", ""); got != "Persisted" {
		t.Errorf("after reopen: got %q, want Persisted", got)
	}
}

func TestEmptyValueIsStored(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()

	wifi := s.Namespace("wifi")
	if err := wifi.Put("pass", ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := wifi.Get("pass", "default"); got != "" {
		t.Errorf("Get: got %q, want empty string (open network)", got)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	if got := m.Get("ssid", "d"); got != "d" {
		t.Errorf("Get: got %q, want d", got)
	}
	if err := m.Put("ssid", "x"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := m.Get("ssid", "d"); got != "x" {
		t.Errorf("Get: got %q, want x", got)
	}

	m.PutError = errors.New("disk full")
	if err := m.Put("ssid", "y"); err == nil {
		t.Error("expected PutError")
	}
	if got := m.Get("ssid", "d"); got != "x" {
		t.Errorf("failed Put changed value to %q", got)
	}
}
