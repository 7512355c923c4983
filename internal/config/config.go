package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default configuration values (production)
const (
	DefaultDomain    = "roomdrop.qzz.io"
	DefaultRelayURL  = "wss://" + DefaultDomain + "/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
	DefaultChunkSize = 16 * 1024 // 16 KB
	DefaultRelayAddr = ":8080"

	// RelayAuto asks the client to browse the LAN for a relay.
	RelayAuto = "auto"

	// MaxChunkSize keeps records well under SCTP message limits once encoded.
	MaxChunkSize = 64 * 1024

	DefaultRequestTimeout = 10 * time.Second
	DefaultSendTimeout    = 60 * time.Second
)

// Config holds client configuration
type Config struct {
	// RelayURL is the websocket endpoint of the signaling relay
	RelayURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// ChunkSize is the file chunk size in bytes
	ChunkSize int

	// OutputDir receives completed downloads
	OutputDir string

	RequestTimeout time.Duration
	SendTimeout    time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	RelayURL   string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	ChunkSize  int
	OutputDir  string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	relayURL := firstNonEmpty(opts.RelayURL, os.Getenv("RELAY_URL"), DefaultRelayURL)
	if relayURL != RelayAuto {
		u, err := url.Parse(relayURL)
		if err != nil {
			return nil, fmt.Errorf("invalid relay URL %q: %w", relayURL, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return nil, fmt.Errorf("invalid relay URL %q: scheme must be ws or wss", relayURL)
		}
	}

	// TURN is optional; empty means STUN only
	turnServer := firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER"))

	forceRelay := opts.ForceRelay
	if !forceRelay {
		if v := os.Getenv("FORCE_RELAY"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid FORCE_RELAY %q: %w", v, err)
			}
			forceRelay = b
		}
	}

	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		if v := os.Getenv("CHUNK_SIZE"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid CHUNK_SIZE %q: %w", v, err)
			}
			chunkSize = n
		}
	}
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < 0 || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("chunk size must be between 1 and %d bytes, got %d", MaxChunkSize, chunkSize)
	}

	return &Config{
		RelayURL:       relayURL,
		STUNServer:     firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:     turnServer,
		TURNUser:       firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:       firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:     forceRelay,
		ChunkSize:      chunkSize,
		OutputDir:      firstNonEmpty(opts.OutputDir, os.Getenv("OUTPUT_DIR"), "."),
		RequestTimeout: DefaultRequestTimeout,
		SendTimeout:    DefaultSendTimeout,
	}, nil
}

// GetRoomLink returns a shareable link for a room ID, derived from the relay host
func (c *Config) GetRoomLink(roomID string) string {
	host := DefaultDomain
	if u, err := url.Parse(c.RelayURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("https://%s/r/%s", host, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return strings.Split(c.STUNServer, ",")
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// RelayOptions configure the relay server.
type RelayOptions struct {
	Addr     string
	DBPath   string
	LogLevel string
	MDNS     bool
}

// RelayConfig holds relay server configuration
type RelayConfig struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string

	// DBPath is the SQLite database path; empty keeps state in memory
	DBPath string

	LogLevel string

	// MDNS advertises the relay on the local network
	MDNS bool
}

// LoadRelay reads relay configuration: flag > env > default.
func LoadRelay(opts RelayOptions) (*RelayConfig, error) {
	return &RelayConfig{
		Addr:     firstNonEmpty(opts.Addr, os.Getenv("RELAY_ADDR"), DefaultRelayAddr),
		DBPath:   firstNonEmpty(opts.DBPath, os.Getenv("RELAY_DB")),
		LogLevel: firstNonEmpty(opts.LogLevel, os.Getenv("LOG_LEVEL"), "info"),
		MDNS:     opts.MDNS,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
