// Package discovery advertises and finds roomdrop relays on the local
// network over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// Service is the mDNS service name without domain suffix.
	Service = "_roomdrop._tcp"
	// Domain is the mDNS domain.
	Domain = "local."
	// DefaultBrowseTimeout bounds a relay lookup.
	DefaultBrowseTimeout = 3 * time.Second

	// pathTXTKey names the TXT entry carrying the websocket path.
	pathTXTKey = "path"
)

// ErrNoRelay is returned when no relay answered before the timeout.
var ErrNoRelay = errors.New("no relay found on the local network")

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Config controls advertising and browsing.
type Config struct {
	Instance      string
	Port          int
	Path          string
	BrowseTimeout time.Duration

	registerFn registerFunc
	browseFn   browseFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Instance == "" {
		out.Instance = "roomdrop-relay"
	}
	if out.Path == "" {
		out.Path = "/ws"
	}
	if out.BrowseTimeout <= 0 {
		out.BrowseTimeout = DefaultBrowseTimeout
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

// Advertiser keeps a relay registered until stopped.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers the relay listening on cfg.Port.
func Advertise(cfg Config) (*Advertiser, error) {
	cfg = cfg.withDefaults()
	if cfg.Port <= 0 {
		return nil, errors.New("listening port must be > 0")
	}

	txt := []string{pathTXTKey + "=" + cfg.Path}
	server, err := cfg.registerFn(cfg.Instance, Service, Domain, cfg.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Stop withdraws the registration.
func (a *Advertiser) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

// Browse returns the websocket URL of the first relay that answers.
func Browse(ctx context.Context, cfg Config) (string, error) {
	cfg = cfg.withDefaults()

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return "", fmt.Errorf("create mDNS resolver: %w", err)
		}
		browse = resolver.Browse
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.BrowseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := browse(ctx, Service, Domain, entries); err != nil {
		return "", fmt.Errorf("browse mDNS: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoRelay
			}
			if u := relayURL(entry); u != "" {
				return u, nil
			}
		case <-ctx.Done():
			return "", ErrNoRelay
		}
	}
}

func relayURL(entry *zeroconf.ServiceEntry) string {
	if entry == nil || entry.Port <= 0 {
		return ""
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		return ""
	}

	path := "/ws"
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, pathTXTKey+"="); ok && strings.HasPrefix(v, "/") {
			path = v
		}
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, fmt.Sprint(entry.Port)), path)
}
