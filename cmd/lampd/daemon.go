package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/lamp-relay/internal/clock"
	"github.com/sweeney/lamp-relay/internal/config"
	"github.com/sweeney/lamp-relay/internal/discovery"
	"github.com/sweeney/lamp-relay/internal/gpio"
	"github.com/sweeney/lamp-relay/internal/logging"
	"github.com/sweeney/lamp-relay/internal/logic"
	"github.com/sweeney/lamp-relay/internal/mqtt"
	"github.com/sweeney/lamp-relay/internal/network"
	"github.com/sweeney/lamp-relay/internal/ota"
	"github.com/sweeney/lamp-relay/internal/settings"
	"github.com/sweeney/lamp-relay/internal/status"
	"github.com/sweeney/lamp-relay/internal/system"
	"github.com/sweeney/lamp-relay/internal/web"
)

// mqttConnectTimeout bounds the handshake of one broker connection attempt.
// The attempt runs on paho's goroutine; the loop only polls its token.
const mqttConnectTimeout = 2 * time.Second

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	bootActiveSlot(cfg.OTA.Dir, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, log)
}

// loadConfig reads the config file named by --config and applies --log-level.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	store, err := settings.Open(cfg.Settings.Path, log)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer store.Close()

	chip, err := gpio.OpenChip(cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	relay, err := chip.Output(cfg.GPIO.RelayPin, false)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	var led *gpio.LineOutput
	if cfg.GPIO.LEDPin >= 0 {
		if led, err = chip.Output(cfg.GPIO.LEDPin, false); err != nil {
			return fmt.Errorf("init led: %w", err)
		}
	}
	sw, err := chip.Input(cfg.GPIO.SwitchPin)
	if err != nil {
		return fmt.Errorf("init switch: %w", err)
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	radio := network.NewNMRadio(cfg.WiFi.Interface, log)
	netMgr := network.NewManager(radio, store.Namespace(network.SettingsNamespace), clock.Real{}, networkOptions(cfg), log)

	client := mqtt.NewPahoClient(cfg.MQTT.Broker, cfg.ClientID(), mqttConnectTimeout, log)
	bridge := mqtt.NewBridge(client, cfg.MQTT.Topic, netMgr, clock.Real{}, cfg.MQTT.ReconnectInterval, log)
	defer bridge.Close()

	ctrl := logic.NewController(relay, bridge, tracker, log)
	ctrl.Sync()

	mode, err := netMgr.BringUp(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("interrupted during network bring-up")
			return nil
		}
		return fmt.Errorf("network bring-up: %w", err)
	}
	tracker.SetNetwork(networkInfo(netMgr.Identity()))

	flash, err := ota.NewSlotFlash(cfg.OTA.Dir)
	if err != nil {
		return fmt.Errorf("init update slots: %w", err)
	}

	srv := web.New(cfg.HTTPAddr, web.Deps{
		Tracker:      tracker,
		Network:      netMgr,
		Scanner:      network.NewScanner(radio, log),
		Updater:      ota.NewManager(flash, log),
		Restarter:    system.NewHostRestarter(log),
		RestartDelay: cfg.OTA.RebootDelay,
		Log:          log,
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	if cfg.MDNS.Enabled {
		if ann := announce(cfg, netMgr.Identity(), log); ann != nil {
			defer ann.Shutdown()
		}
	}

	if led != nil {
		if err := led.Set(true); err != nil {
			log.Warn("ready led", zap.Error(err))
		}
	}

	log.Info("started",
		zap.String("version", version),
		zap.Stringer("mode", mode),
		zap.String("http", cfg.HTTPAddr),
		zap.String("broker", cfg.MQTT.Broker),
		zap.String("topic", cfg.MQTT.Topic),
		zap.Duration("tick", cfg.Tick),
		zap.Duration("debounce", cfg.GPIO.Debounce))

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	l := &loop{
		ctrl:    ctrl,
		bus:     bridge,
		web:     srv,
		sw:      sw,
		deb:     logic.NewDebouncer(cfg.GPIO.Debounce),
		tracker: tracker,
		log:     log,
	}
	return runLoop(l, time.Now, ticker.C, ctx.Done())
}

func announce(cfg config.Config, id network.Identity, log *zap.Logger) *discovery.Announcement {
	port, err := discovery.PortFromAddr(cfg.HTTPAddr)
	if err != nil {
		log.Warn("mdns disabled", zap.Error(err))
		return nil
	}
	ann, err := discovery.Announce(cfg.Hostname, port, map[string]string{
		"topic":   cfg.MQTT.Topic,
		"mode":    id.Mode.String(),
		"version": version,
	})
	if err != nil {
		log.Warn("mdns announce failed", zap.Error(err))
		return nil
	}
	log.Info("mdns announced", zap.String("instance", cfg.Hostname), zap.Int("port", port))
	return ann
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		TickMs:       cfg.Tick.Milliseconds(),
		DebounceMs:   cfg.GPIO.Debounce.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		Topic:        cfg.MQTT.Topic,
		HTTPAddr:     cfg.HTTPAddr,
		HistoryLimit: cfg.History.Limit,
	}
}

func networkOptions(cfg config.Config) network.Options {
	return network.Options{
		Hostname:       cfg.Hostname,
		DefaultSSID:    cfg.WiFi.DefaultSSID,
		DefaultPass:    cfg.WiFi.DefaultPass,
		APSSID:         cfg.WiFi.APSSID,
		APPass:         cfg.WiFi.APPass,
		ConnectTimeout: cfg.WiFi.ConnectTimeout,
		PollInterval:   cfg.WiFi.PollInterval,
	}
}

func networkInfo(id network.Identity) *status.NetworkInfo {
	return &status.NetworkInfo{
		Mode:     id.Mode.String(),
		Hostname: id.Hostname,
		SSID:     id.SSID,
		IP:       id.Addr,
		MAC:      id.MAC,
	}
}

// bus is the part of the MQTT bridge the loop drives.
type bus interface {
	Service(current logic.State) []logic.State
	Connected() bool
}

// toggleQueue is the web server's queue of /toggle requests.
type toggleQueue interface {
	Service(t web.Toggler)
}

// loop holds everything the control goroutine touches. All lamp state
// changes happen in step.
type loop struct {
	ctrl    *logic.Controller
	bus     bus
	web     toggleQueue
	sw      gpio.Input
	deb     *logic.Debouncer
	tracker *status.Tracker
	log     *zap.Logger

	readFailing bool
}

func (l *loop) step(now time.Time) {
	for _, s := range l.bus.Service(l.ctrl.State()) {
		l.log.Info("bus command", zap.Stringer("state", s))
		l.ctrl.SetState(s)
	}

	l.web.Service(l.ctrl)

	closed, err := l.sw.Read()
	switch {
	case err != nil:
		if !l.readFailing {
			l.log.Warn("switch read error", zap.Error(err))
			l.readFailing = true
		}
	default:
		if l.readFailing {
			l.log.Info("switch read recovered")
			l.readFailing = false
		}
		if l.deb.Process(closed, now) {
			l.log.Info("switch edge", zap.Bool("closed", l.deb.Stable()))
			l.ctrl.Toggle()
		}
	}

	l.tracker.SetMQTTConnected(l.bus.Connected())
}

func runLoop(l *loop, now func() time.Time, tick <-chan time.Time, done <-chan struct{}) error {
	for {
		select {
		case <-done:
			l.log.Info("shutting down", zap.Stringer("state", l.ctrl.State()))
			return nil
		case <-tick:
			l.step(now())
		}
	}
}
