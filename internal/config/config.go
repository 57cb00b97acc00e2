// Package config loads the daemon configuration from an optional YAML file
// layered over compiled-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/lampd/config.yaml"

// Config is the full daemon configuration.
type Config struct {
	Hostname string        `yaml:"hostname"`
	HTTPAddr string        `yaml:"http_addr"`
	Tick     time.Duration `yaml:"tick"`
	LogLevel string        `yaml:"log_level"`

	WiFi     WiFiConfig     `yaml:"wifi"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Settings SettingsConfig `yaml:"settings"`
	OTA      OTAConfig      `yaml:"ota"`
	History  HistoryConfig  `yaml:"history"`
	MDNS     MDNSConfig     `yaml:"mdns"`
}

// WiFiConfig holds the factory credentials and the fallback access point.
type WiFiConfig struct {
	Interface      string        `yaml:"interface"`
	DefaultSSID    string        `yaml:"default_ssid"`
	DefaultPass    string        `yaml:"default_pass"`
	APSSID         string        `yaml:"ap_ssid"`
	APPass         string        `yaml:"ap_pass"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

// MQTTConfig describes the broker session.
type MQTTConfig struct {
	Broker            string        `yaml:"broker"`
	Topic             string        `yaml:"topic"`
	ClientID          string        `yaml:"client_id"` // empty = hostname
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// GPIOConfig holds line offsets on the GPIO chip.
type GPIOConfig struct {
	Chip      string        `yaml:"chip"`
	RelayPin  int           `yaml:"relay_pin"`
	LEDPin    int           `yaml:"led_pin"` // negative disables the ready LED
	SwitchPin int           `yaml:"switch_pin"`
	Debounce  time.Duration `yaml:"debounce"`
}

// SettingsConfig locates the persisted settings database.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// OTAConfig locates the A/B image slots.
type OTAConfig struct {
	Dir         string        `yaml:"dir"`
	RebootDelay time.Duration `yaml:"reboot_delay"`
}

// HistoryConfig bounds the state-change history shown on the web page.
type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

// MDNSConfig controls the mDNS announcement of the web page.
type MDNSConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the factory configuration.
func Default() Config {
	return Config{
		Hostname: "lampada-lavanderia",
		HTTPAddr: ":80",
		Tick:     10 * time.Millisecond,
		LogLevel: "info",
		WiFi: WiFiConfig{
			Interface:      "wlan0",
			DefaultSSID:    "uaifai_IoT",
			DefaultPass:    "supersuper",
			APSSID:         "lampada_lavanderia",
			APPass:         "12345678",
			ConnectTimeout: 12 * time.Second,
			PollInterval:   300 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Broker:            "tcp://192.168.0.127:1883",
			Topic:             "casa/lavanderia/lampada",
			ReconnectInterval: 5 * time.Second,
		},
		GPIO: GPIOConfig{
			Chip:      "gpiochip0",
			RelayPin:  26,
			LEDPin:    19,
			SwitchPin: 27,
			Debounce:  50 * time.Millisecond,
		},
		Settings: SettingsConfig{Path: "/var/lib/lampd/settings.db"},
		OTA: OTAConfig{
			Dir:         "/var/lib/lampd/slots",
			RebootDelay: 800 * time.Millisecond,
		},
		History: HistoryConfig{Limit: 50},
		MDNS:    MDNSConfig{Enabled: true},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ClientID returns the MQTT client id, defaulting to the hostname.
func (c Config) ClientID() string {
	if c.MQTT.ClientID != "" {
		return c.MQTT.ClientID
	}
	return c.Hostname
}

// hostnameRE matches an RFC 1123 host name: dot-separated labels of
// letters, digits and inner hyphens.
var hostnameRE = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`)

// Validate checks the values the daemon cannot run without.
func (c Config) Validate() error {
	var errs []error

	switch {
	case c.Hostname == "":
		errs = append(errs, errors.New("hostname is required"))
	case len(c.Hostname) > 253 || !hostnameRE.MatchString(c.Hostname):
		errs = append(errs, fmt.Errorf("hostname %q is not a valid host name", c.Hostname))
	}
	if c.Tick <= 0 {
		errs = append(errs, errors.New("tick must be positive"))
	}
	if c.WiFi.APSSID == "" {
		errs = append(errs, errors.New("wifi.ap_ssid is required"))
	}
	// WPA2 passphrases are 8..63 characters.
	if n := len(c.WiFi.APPass); n < 8 || n > 63 {
		errs = append(errs, fmt.Errorf("wifi.ap_pass must be 8-63 characters, got %d", n))
	}
	if c.WiFi.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("wifi.connect_timeout must be positive"))
	}
	if c.WiFi.PollInterval <= 0 {
		errs = append(errs, errors.New("wifi.poll_interval must be positive"))
	}
	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt.topic is required"))
	}
	if c.MQTT.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("mqtt.reconnect_interval must be positive"))
	}
	if c.GPIO.Debounce <= 0 {
		errs = append(errs, errors.New("gpio.debounce must be positive"))
	}
	if c.GPIO.RelayPin < 0 || c.GPIO.SwitchPin < 0 {
		errs = append(errs, errors.New("gpio.relay_pin and gpio.switch_pin must be set"))
	}
	if c.History.Limit <= 0 {
		errs = append(errs, errors.New("history.limit must be positive"))
	}

	return errors.Join(errs...)
}
