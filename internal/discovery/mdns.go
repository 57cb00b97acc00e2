// Package discovery announces the lamp's web page over mDNS and finds other
// lamps on the local network.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the advertised service: the web page.
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	// DefaultFindTimeout bounds Find when the context has no deadline.
	DefaultFindTimeout = 5 * time.Second

	// deviceTag marks our records among other HTTP services.
	deviceTag = "device=lampd"
)

// Announcement is a registered mDNS service.
type Announcement struct {
	server *zeroconf.Server
}

// Announce registers instance on port with TXT records built from meta.
func Announce(instance string, port int, meta map[string]string) (*Announcement, error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, TXT(meta), nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	return &Announcement{server: server}, nil
}

// Shutdown withdraws the announcement.
func (a *Announcement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// TXT builds sorted key=value records, always including the device tag.
func TXT(meta map[string]string) []string {
	txt := []string{deviceTag}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		if k == "device" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		txt = append(txt, k+"="+meta[k])
	}
	return txt
}

// PortFromAddr extracts the port of a listen address such as ":80".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}

// Lamp is a discovered device.
type Lamp struct {
	Instance string
	Hostname string
	IP       string
	Port     int
	Meta     map[string]string
}

// URL is the lamp's web page.
func (l Lamp) URL() string {
	return "http://" + net.JoinHostPort(l.IP, strconv.Itoa(l.Port)) + "/"
}

// Find browses for lamps until ctx is done.
func Find(ctx context.Context) ([]Lamp, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFindTimeout)
		defer cancel()
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu    sync.Mutex
		lamps []Lamp
		seen  = make(map[string]bool)
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			lamp, ok := parseEntry(entry)
			if !ok {
				continue
			}
			mu.Lock()
			if !seen[lamp.Instance] {
				seen[lamp.Instance] = true
				lamps = append(lamps, lamp)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("browse mDNS services: %w", err)
	}

	<-ctx.Done()
	wg.Wait()

	sort.Slice(lamps, func(i, j int) bool { return lamps[i].Instance < lamps[j].Instance })
	return lamps, nil
}

// parseEntry keeps only entries carrying the device tag.
func parseEntry(entry *zeroconf.ServiceEntry) (Lamp, bool) {
	meta := make(map[string]string)
	tagged := false
	for _, txt := range entry.Text {
		if txt == deviceTag {
			tagged = true
			continue
		}
		k, v, _ := strings.Cut(txt, "=")
		meta[k] = v
	}
	if !tagged {
		return Lamp{}, false
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return Lamp{}, false
	}

	port := entry.Port
	if port == 0 {
		port = 80
	}

	return Lamp{
		Instance: entry.Instance,
		Hostname: entry.HostName,
		IP:       ip,
		Port:     port,
		Meta:     meta,
	}, true
}
