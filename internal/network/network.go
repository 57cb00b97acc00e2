// Package network brings the station link up at boot and falls back to a
// local access point when it cannot, so the web page stays reachable.
package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/lamp-relay/internal/clock"
	"github.com/sweeney/lamp-relay/internal/settings"
)

// Settings namespace and keys for the persisted credentials.
const (
	SettingsNamespace = "wifi"
	KeySSID           = "ssid"
	KeyPass           = "pass"
)

const (
	DefaultConnectTimeout = 12 * time.Second
	DefaultPollInterval   = 300 * time.Millisecond
)

// ErrInvalidSSID is returned when saving credentials with an empty SSID.
var ErrInvalidSSID = errors.New("empty SSID")

// Mode is the link state for this boot. It only moves forward.
type Mode int

const (
	StationConnecting Mode = iota
	StationConnected
	AccessPointFallback
)

func (m Mode) String() string {
	switch m {
	case StationConnecting:
		return "connecting"
	case StationConnected:
		return "station"
	case AccessPointFallback:
		return "access-point"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Credentials for the home network.
type Credentials struct {
	SSID       string
	Passphrase string
}

// Identity is what the web page shows about the link.
type Identity struct {
	Mode     Mode
	Hostname string
	SSID     string
	Addr     string // empty if unknown
	MAC      string
}

// AvailableNetwork is one scan result.
type AvailableNetwork struct {
	SSID string `json:"ssid"`
	RSSI int    `json:"rssi"`
}

// Radio is the Wi-Fi backend.
type Radio interface {
	SetHostname(name string) error
	// JoinStation starts joining and returns without waiting for the link.
	JoinStation(ctx context.Context, c Credentials) error
	StationConnected() bool
	LocalAddr() string
	StartAccessPoint(ssid, pass string) error
	AccessPointAddr() string
	MAC() string
	// RSSI returns the station signal in dBm, 0 when not associated.
	RSSI() int
	Scan(ctx context.Context) ([]AvailableNetwork, error)
}

// Options configure a Manager. Zero durations take the defaults.
type Options struct {
	Hostname       string
	DefaultSSID    string
	DefaultPass    string
	APSSID         string
	APPass         string
	ConnectTimeout time.Duration
	PollInterval   time.Duration
}

// LoadCredentials reads the stored credentials, falling back to the defaults
// per key.
func LoadCredentials(kv settings.KV, defSSID, defPass string) Credentials {
	return Credentials{
		SSID:       kv.Get(KeySSID, defSSID),
		Passphrase: kv.Get(KeyPass, defPass),
	}
}

// SaveCredentials persists c. They take effect on the next boot.
func SaveCredentials(kv settings.KV, c Credentials) error {
	if c.SSID == "" {
		return ErrInvalidSSID
	}
	if err := kv.Put(KeySSID, c.SSID); err != nil {
		return fmt.Errorf("save ssid: %w", err)
	}
	if err := kv.Put(KeyPass, c.Passphrase); err != nil {
		return fmt.Errorf("save passphrase: %w", err)
	}
	return nil
}

// Manager runs the boot-time bring-up and reports the outcome.
type Manager struct {
	radio Radio
	kv    settings.KV
	clk   clock.Clock
	opts  Options
	log   *zap.Logger

	mu       sync.RWMutex
	identity Identity
}

// NewManager creates a Manager in StationConnecting.
func NewManager(radio Radio, kv settings.KV, clk clock.Clock, opts Options, log *zap.Logger) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		radio: radio,
		kv:    kv,
		clk:   clk,
		opts:  opts,
		log:   log.Named("network"),
		identity: Identity{
			Mode:     StationConnecting,
			Hostname: opts.Hostname,
		},
	}
}

// BringUp joins the configured network, polling until connected or the
// connect timeout elapses, then falls back to the access point. It runs
// once per boot; the only error is ctx cancellation.
func (m *Manager) BringUp(ctx context.Context) (Mode, error) {
	creds := LoadCredentials(m.kv, m.opts.DefaultSSID, m.opts.DefaultPass)

	if err := m.radio.SetHostname(m.opts.Hostname); err != nil {
		m.log.Warn("set hostname failed", zap.String("hostname", m.opts.Hostname), zap.Error(err))
	}

	m.log.Info("joining", zap.String("ssid", creds.SSID),
		zap.Duration("timeout", m.opts.ConnectTimeout))

	if err := m.radio.JoinStation(ctx, creds); err != nil {
		m.log.Warn("join failed", zap.String("ssid", creds.SSID), zap.Error(err))
		m.fallback()
		return AccessPointFallback, nil
	}

	start := m.clk.Now()
	for {
		if m.radio.StationConnected() {
			m.setIdentity(Identity{
				Mode:     StationConnected,
				Hostname: m.opts.Hostname,
				SSID:     creds.SSID,
				Addr:     m.radio.LocalAddr(),
				MAC:      m.radio.MAC(),
			})
			m.log.Info("station connected", zap.String("ssid", creds.SSID),
				zap.String("addr", m.Identity().Addr))
			return StationConnected, nil
		}
		if m.clk.Now().Sub(start) >= m.opts.ConnectTimeout {
			break
		}
		if err := m.clk.Sleep(ctx, m.opts.PollInterval); err != nil {
			return m.Mode(), err
		}
	}

	m.log.Warn("station connect timed out", zap.String("ssid", creds.SSID))
	m.fallback()
	return AccessPointFallback, nil
}

func (m *Manager) fallback() {
	id := Identity{
		Mode:     AccessPointFallback,
		Hostname: m.opts.Hostname,
		SSID:     m.opts.APSSID,
		MAC:      m.radio.MAC(),
	}
	if err := m.radio.StartAccessPoint(m.opts.APSSID, m.opts.APPass); err != nil {
		m.log.Error("access point start failed", zap.String("ssid", m.opts.APSSID), zap.Error(err))
	} else {
		id.Addr = m.radio.AccessPointAddr()
		m.log.Info("access point up", zap.String("ssid", m.opts.APSSID), zap.String("addr", id.Addr))
	}
	m.setIdentity(id)
}

func (m *Manager) setIdentity(id Identity) {
	m.mu.Lock()
	m.identity = id
	m.mu.Unlock()
}

// Mode returns the current link mode.
func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity.Mode
}

// StationConnected reports whether bring-up ended on the home network.
func (m *Manager) StationConnected() bool {
	return m.Mode() == StationConnected
}

// Identity returns a copy of the current identity.
func (m *Manager) Identity() Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// RSSI returns the station signal, 0 outside station mode.
func (m *Manager) RSSI() int {
	if !m.StationConnected() {
		return 0
	}
	return m.radio.RSSI()
}

// SaveCredentials persists new credentials for the next boot.
func (m *Manager) SaveCredentials(c Credentials) error {
	if err := SaveCredentials(m.kv, c); err != nil {
		return err
	}
	m.log.Info("credentials saved", zap.String("ssid", c.SSID))
	return nil
}
