package mqtt

import (
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/sweeney/lamp-relay/internal/clock"
	"github.com/sweeney/lamp-relay/internal/logic"
)

// silentBroker accepts TCP connections and never answers, like a broker
// host whose MQTT service has hung.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return "tcp://" + ln.Addr().String()
}

func TestPahoConnectReturnsBeforeBrokerAnswers(t *testing.T) {
	client := NewPahoClient(silentBroker(t), "lamp-test", 300*time.Millisecond, zaptest.NewLogger(t))
	defer client.Disconnect()

	start := time.Now()
	tok := client.Connect()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Connect took %v", elapsed)
	}
	if finished(tok) {
		t.Fatal("attempt should still be pending while the broker is silent")
	}

	select {
	case <-tok.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("attempt never gave up")
	}
	if tok.Error() == nil {
		t.Error("expected an error from a broker that never answered")
	}
	if client.IsConnected() {
		t.Error("must not report connected")
	}
}

func TestBridgeServiceWithSilentBroker(t *testing.T) {
	log := zaptest.NewLogger(t)
	client := NewPahoClient(silentBroker(t), "lamp-test", 2*time.Second, log)
	b := NewBridge(client, DefaultTopic, &fakeLink{up: true}, clock.NewFake(t0), 0, log)
	defer b.Close()

	// Ten ticks of the control loop while the handshake hangs.
	start := time.Now()
	for i := 0; i < 10; i++ {
		b.Service(logic.StateOff)
		b.PublishState(logic.StateOn)
		time.Sleep(10 * time.Millisecond)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("ten ticks took %v with a silent broker", elapsed)
	}
	if b.Connected() {
		t.Error("must not report connected")
	}
}
