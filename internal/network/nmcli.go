package network

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// apConnection is the NetworkManager profile name used for the fallback AP.
const apConnection = "lampd-ap"

// commandTimeout bounds each short nmcli query.
const commandTimeout = 5 * time.Second

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// NMRadio drives a Wi-Fi interface through NetworkManager's nmcli.
type NMRadio struct {
	iface string
	run   runFunc
	log   *zap.Logger
}

// NewNMRadio creates a radio for iface (e.g. "wlan0").
func NewNMRadio(iface string, log *zap.Logger) *NMRadio {
	if log == nil {
		log = zap.NewNop()
	}
	return &NMRadio{iface: iface, run: execRun, log: log.Named("nmcli")}
}

func (r *NMRadio) query(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return r.run(ctx, "nmcli", args...)
}

// SetHostname sets the system hostname through NetworkManager.
func (r *NMRadio) SetHostname(name string) error {
	_, err := r.query("general", "hostname", name)
	return err
}

// JoinStation starts activating a connection in the background; nmcli
// itself blocks until activation, which is what BringUp polls for.
func (r *NMRadio) JoinStation(ctx context.Context, c Credentials) error {
	args := []string{"--wait", "0", "device", "wifi", "connect", c.SSID, "ifname", r.iface}
	if c.Passphrase != "" {
		args = append(args, "password", c.Passphrase)
	}
	cmd := exec.CommandContext(ctx, "nmcli", args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start nmcli: %w", err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			r.log.Debug("nmcli connect exited", zap.Error(err))
		}
	}()
	return nil
}

// StationConnected reports whether the interface is fully activated.
func (r *NMRadio) StationConnected() bool {
	out, err := r.query("-g", "GENERAL.STATE", "device", "show", r.iface)
	if err != nil {
		return false
	}
	return parseDeviceState(out) == 100
}

// LocalAddr returns the interface's first IPv4 address.
func (r *NMRadio) LocalAddr() string {
	out, err := r.query("-g", "IP4.ADDRESS", "device", "show", r.iface)
	if err != nil {
		return ""
	}
	return parseIPv4(out)
}

// StartAccessPoint brings up a WPA2 hotspot on the interface.
func (r *NMRadio) StartAccessPoint(ssid, pass string) error {
	_, err := r.query("device", "wifi", "hotspot", "ifname", r.iface,
		"con-name", apConnection, "ssid", ssid, "password", pass)
	return err
}

// AccessPointAddr is the hotspot's own address.
func (r *NMRadio) AccessPointAddr() string {
	return r.LocalAddr()
}

// MAC returns the interface hardware address.
func (r *NMRadio) MAC() string {
	out, err := r.query("-g", "GENERAL.HWADDR", "device", "show", r.iface)
	if err != nil {
		return ""
	}
	return unescapeTerse(strings.TrimSpace(string(out)))
}

// RSSI returns the signal of the associated access point in dBm.
func (r *NMRadio) RSSI() int {
	out, err := r.query("-t", "-f", "IN-USE,SIGNAL", "device", "wifi", "list",
		"ifname", r.iface, "--rescan", "no")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := splitTerse(line)
		if len(fields) == 2 && fields[0] == "*" {
			if pct, err := strconv.Atoi(fields[1]); err == nil {
				return percentToDBm(pct)
			}
		}
	}
	return 0
}

// Scan forces a rescan and lists visible networks, strongest first.
func (r *NMRadio) Scan(ctx context.Context) ([]AvailableNetwork, error) {
	out, err := r.run(ctx, "nmcli", "-t", "-f", "SSID,SIGNAL", "device", "wifi", "list",
		"ifname", r.iface, "--rescan", "yes")
	if err != nil {
		return nil, err
	}
	return parseScan(out), nil
}

func parseDeviceState(out []byte) int {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func parseIPv4(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		// Multiple addresses are joined with " | ".
		for _, addr := range strings.Split(line, "|") {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			if i := strings.IndexByte(addr, '/'); i >= 0 {
				addr = addr[:i]
			}
			return addr
		}
	}
	return ""
}

func parseScan(out []byte) []AvailableNetwork {
	seen := make(map[string]int)
	var nets []AvailableNetwork
	for _, line := range strings.Split(string(out), "\n") {
		fields := splitTerse(line)
		if len(fields) != 2 || fields[0] == "" {
			continue
		}
		pct, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		rssi := percentToDBm(pct)
		if i, ok := seen[fields[0]]; ok {
			if rssi > nets[i].RSSI {
				nets[i].RSSI = rssi
			}
			continue
		}
		seen[fields[0]] = len(nets)
		nets = append(nets, AvailableNetwork{SSID: fields[0], RSSI: rssi})
	}
	sort.SliceStable(nets, func(i, j int) bool { return nets[i].RSSI > nets[j].RSSI })
	return nets
}

// splitTerse splits one line of nmcli -t output on unescaped colons.
func splitTerse(line string) []string {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return nil
	}
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, c := range line {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	return append(fields, cur.String())
}

func unescapeTerse(s string) string {
	return strings.ReplaceAll(s, `\:`, ":")
}

// percentToDBm maps NetworkManager's 0..100 signal quality onto dBm.
func percentToDBm(pct int) int {
	if pct <= 0 {
		return -100
	}
	if pct >= 100 {
		return -50
	}
	return pct/2 - 100
}
