package system

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestHostRestarterRunsOnce(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})

	h := NewHostRestarter(zaptest.NewLogger(t))
	h.reboot = func() error {
		mu.Lock()
		calls++
		mu.Unlock()
		close(done)
		return nil
	}
	h.exit = func(int) { t.Error("exit called after successful reboot") }

	h.RestartAfter(time.Millisecond, "test")
	h.RestartAfter(time.Millisecond, "again")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reboot not called")
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("reboot calls: got %d, want 1", calls)
	}
}

func TestHostRestarterExitsWhenRebootFails(t *testing.T) {
	codes := make(chan int, 1)
	h := NewHostRestarter(zaptest.NewLogger(t))
	h.reboot = func() error { return errors.New("operation not permitted") }
	h.exit = func(code int) { codes <- code }

	h.RestartAfter(0, "test")

	select {
	case code := <-codes:
		if code != 1 {
			t.Errorf("exit code: got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("exit not called")
	}
}

func TestFakeRestarter(t *testing.T) {
	var f FakeRestarter
	f.RestartAfter(800*time.Millisecond, "update")
	got := f.Restarts()
	if len(got) != 1 || got[0].Delay != 800*time.Millisecond || got[0].Reason != "update" {
		t.Errorf("got %+v", got)
	}
}
