package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/sweeney/lamp-relay/internal/clock"
	"github.com/sweeney/lamp-relay/internal/gpio"
	"github.com/sweeney/lamp-relay/internal/logic"
	"github.com/sweeney/lamp-relay/internal/mqtt"
	"github.com/sweeney/lamp-relay/internal/network"
	"github.com/sweeney/lamp-relay/internal/ota"
	"github.com/sweeney/lamp-relay/internal/settings"
	"github.com/sweeney/lamp-relay/internal/status"
	"github.com/sweeney/lamp-relay/internal/system"
	"github.com/sweeney/lamp-relay/internal/web"
)

const topic = "casa/lavanderia/lampada"

// device wires the real components around fake hardware, the way the
// daemon does, and runs a control goroutine equivalent to its loop.
type device struct {
	clk     *clock.Fake
	radio   *network.FakeRadio
	net     *network.Manager
	relay   *gpio.FakeOutput
	client  *mqtt.FakeClient
	bridge  *mqtt.Bridge
	tracker *status.Tracker
	ctrl    *logic.Controller
	srv     *web.Server
	http    *httptest.Server

	stop chan struct{}
	wg   sync.WaitGroup
}

func newDevice(t *testing.T, radio *network.FakeRadio) *device {
	t.Helper()
	log := zaptest.NewLogger(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	d := &device{
		clk:     clock.NewFake(start),
		radio:   radio,
		relay:   gpio.NewFakeOutput(),
		client:  mqtt.NewFakeClient(),
		tracker: status.NewTracker(start, status.Config{Broker: "tcp://broker:1883", Topic: topic}),
		stop:    make(chan struct{}),
	}
	d.net = network.NewManager(radio, settings.NewMemory(), d.clk, network.Options{
		Hostname:       "lampada-lavanderia",
		DefaultSSID:    "uaifai_IoT",
		DefaultPass:    "supersuper",
		APSSID:         "lampada_lavanderia",
		APPass:         "12345678",
		ConnectTimeout: 12 * time.Second,
		PollInterval:   300 * time.Millisecond,
	}, log)
	d.bridge = mqtt.NewBridge(d.client, topic, d.net, d.clk, 5*time.Second, log)
	d.ctrl = logic.NewController(d.relay, d.bridge, d.tracker, log)
	d.ctrl.Sync()

	if _, err := d.net.BringUp(context.Background()); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	id := d.net.Identity()
	d.tracker.SetNetwork(&status.NetworkInfo{
		Mode: id.Mode.String(), Hostname: id.Hostname, SSID: id.SSID, IP: id.Addr, MAC: id.MAC,
	})

	d.srv = web.New(":0", web.Deps{
		Tracker:   d.tracker,
		Network:   d.net,
		Scanner:   network.NewScanner(radio, log),
		Updater:   ota.NewManager(&ota.FakeFlash{}, log),
		Restarter: &system.FakeRestarter{},
		Log:       log,
	})
	d.http = httptest.NewServer(d.srv.Handler())

	d.wg.Add(1)
	go d.loop()

	t.Cleanup(func() {
		close(d.stop)
		d.wg.Wait()
		d.http.Close()
		d.bridge.Close()
	})
	return d
}

func (d *device) loop() {
	defer d.wg.Done()
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			for _, s := range d.bridge.Service(d.ctrl.State()) {
				d.ctrl.SetState(s)
			}
			d.srv.Service(d.ctrl)
			d.tracker.SetMQTTConnected(d.bridge.Connected())
		}
	}
}

// mqttConnected reads the session state as published by the loop.
func (d *device) mqttConnected() bool {
	return d.tracker.Snapshot().MQTTConnected
}

func (d *device) getJSON(t *testing.T, path string, v any) {
	t.Helper()
	resp, err := http.Get(d.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("GET %s: decode: %v", path, err)
	}
}

func (d *device) toggle(t *testing.T) {
	t.Helper()
	resp, err := http.Post(d.http.URL+"/toggle", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST /toggle: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("POST /toggle: status %d body %q", resp.StatusCode, body)
	}
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestIntegrationAccessPointFallback(t *testing.T) {
	radio := network.NewFakeRadio()
	radio.ConnectAfterPolls = -1
	d := newDevice(t, radio)

	if d.net.Mode() != network.AccessPointFallback {
		t.Fatalf("mode: got %v, want access-point", d.net.Mode())
	}
	if elapsed := d.clk.Now().Sub(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)); elapsed < 12*time.Second {
		t.Errorf("fell back after %v, want at least 12s of polling", elapsed)
	}
	if radio.APSSID != "lampada_lavanderia" || radio.APPass != "12345678" {
		t.Errorf("access point: ssid %q pass %q", radio.APSSID, radio.APPass)
	}

	var lamp status.LampJSON
	d.getJSON(t, "/status", &lamp)
	if lamp.On != 0 || lamp.Historico != "" {
		t.Errorf("/status: got %+v, want off with empty history", lamp)
	}

	var full status.StatusJSON
	d.getJSON(t, "/index.json", &full)
	if full.Status.Network == nil || full.Status.Network.Mode != "access-point" || full.Status.Network.IP != "192.168.4.1" {
		t.Errorf("/index.json network: %+v", full.Status.Network)
	}

	// The page still works offline: the relay follows the web toggle.
	d.toggle(t)
	if !d.relay.High() {
		t.Error("relay should be high after toggle in access-point mode")
	}

	time.Sleep(20 * time.Millisecond)
	d.client.Inject(topic, "0")
	time.Sleep(20 * time.Millisecond)
	if !d.relay.High() {
		t.Error("no broker session in access-point mode; bus command must not apply")
	}
	if _, ok := d.client.LastPublished(); ok {
		t.Error("nothing should be published without a station link")
	}
}

func TestIntegrationWebToggleMirrorsToBroker(t *testing.T) {
	d := newDevice(t, network.NewFakeRadio())

	if d.net.Mode() != network.StationConnected {
		t.Fatalf("mode: got %v, want station", d.net.Mode())
	}
	eventually(t, "broker session", d.mqttConnected)
	if got, _ := d.client.Retained(topic); got != "0" {
		t.Errorf("boot state retained: got %q, want %q", got, "0")
	}

	d.toggle(t)

	if !d.relay.High() {
		t.Error("relay should be high")
	}
	var lamp status.LampJSON
	d.getJSON(t, "/status", &lamp)
	if lamp.On != 1 {
		t.Errorf("/status on: got %d, want 1", lamp.On)
	}
	if got, _ := d.client.Retained(topic); got != "1" {
		t.Errorf("retained: got %q, want %q", got, "1")
	}

	var full status.StatusJSON
	d.getJSON(t, "/index.json", &full)
	if !full.Status.MQTT.Connected {
		t.Error("/index.json should report the broker connected")
	}
	if len(full.Status.History) != 1 || full.Status.History[0].State != "ON" {
		t.Errorf("history: %+v", full.Status.History)
	}
}

func TestIntegrationBrokerCommand(t *testing.T) {
	d := newDevice(t, network.NewFakeRadio())
	eventually(t, "broker session", d.mqttConnected)

	d.toggle(t)
	if !d.relay.High() {
		t.Fatal("relay should be high after toggle")
	}

	d.client.Inject(topic, "0")
	eventually(t, "lamp off", func() bool { return d.tracker.Snapshot().State == logic.StateOff })
	if d.relay.High() {
		t.Error("relay should be low")
	}

	var lamp status.LampJSON
	d.getJSON(t, "/status", &lamp)
	if lamp.On != 0 {
		t.Errorf("/status on: got %d, want 0", lamp.On)
	}
	if got, _ := d.client.Retained(topic); got != "0" {
		t.Errorf("retained: got %q, want %q", got, "0")
	}

	// Junk on the topic is ignored.
	d.client.Inject(topic, "ligar")
	time.Sleep(20 * time.Millisecond)
	if d.relay.High() {
		t.Error("invalid payload must not change the relay")
	}
}

func TestIntegrationBrokerReconnectRepublishes(t *testing.T) {
	d := newDevice(t, network.NewFakeRadio())
	eventually(t, "broker session", d.mqttConnected)
	d.toggle(t)

	d.client.Drop()
	eventually(t, "session dropped", func() bool { return !d.mqttConnected() })

	d.clk.Advance(5 * time.Second)
	eventually(t, "reconnect", d.mqttConnected)

	if got, _ := d.client.Retained(topic); got != "1" {
		t.Errorf("retained after reconnect: got %q, want %q", got, "1")
	}
	if !d.relay.High() {
		t.Error("reconnect must not change the lamp")
	}
}
