package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvertiseRegistersService(t *testing.T) {
	var (
		gotInstance, gotService, gotDomain string
		gotPort                            int
		gotTXT                             []string
	)

	cfg := Config{
		Port: 8080,
		registerFn: func(instance, service, domain string, port int, text []string, _ []net.Interface) (*zeroconf.Server, error) {
			gotInstance, gotService, gotDomain, gotPort = instance, service, domain, port
			gotTXT = append([]string(nil), text...)
			return nil, nil
		},
	}

	adv, err := Advertise(cfg)
	require.NoError(t, err)
	adv.Stop()

	assert.Equal(t, "roomdrop-relay", gotInstance)
	assert.Equal(t, Service, gotService)
	assert.Equal(t, Domain, gotDomain)
	assert.Equal(t, 8080, gotPort)
	assert.Equal(t, []string{"path=/ws"}, gotTXT)
}

func TestAdvertiseNeedsPort(t *testing.T) {
	_, err := Advertise(Config{})
	assert.Error(t, err)
}

func TestBrowseReturnsFirstUsableRelay(t *testing.T) {
	cfg := Config{
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			go func() {
				noAddr := zeroconf.NewServiceEntry("broken", service, domain)
				noAddr.Port = 9000
				entries <- noAddr

				good := zeroconf.NewServiceEntry("relay", service, domain)
				good.Port = 8080
				good.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
				good.Text = []string{"path=/signal"}
				entries <- good
			}()
			return nil
		},
	}

	url, err := Browse(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "ws://192.168.1.20:8080/signal", url)
}

func TestBrowseTimesOut(t *testing.T) {
	cfg := Config{
		BrowseTimeout: 50 * time.Millisecond,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			return nil
		},
	}

	_, err := Browse(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNoRelay)
}

func TestRelayURLPrefersIPv4(t *testing.T) {
	entry := zeroconf.NewServiceEntry("relay", Service, Domain)
	entry.Port = 8080
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	assert.Equal(t, "ws://[fe80::1]:8080/ws", relayURL(entry))

	entry.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.2")}
	assert.Equal(t, "ws://10.0.0.2:8080/ws", relayURL(entry))
}
