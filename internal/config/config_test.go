package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RELAY_URL", "STUN_SERVER", "TURN_SERVER", "TURN_USERNAME",
		"TURN_PASSWORD", "FORCE_RELAY", "CHUNK_SIZE", "OUTPUT_DIR",
		"RELAY_ADDR", "RELAY_DB", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultRelayURL, cfg.RelayURL)
	assert.Equal(t, DefaultSTUN, cfg.STUNServer)
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.False(t, cfg.ForceRelay)
	assert.Nil(t, cfg.GetTURNServers())
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("RELAY_URL", "ws://env.example:9000/ws")
	t.Setenv("CHUNK_SIZE", "8192")
	t.Setenv("FORCE_RELAY", "true")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "ws://env.example:9000/ws", cfg.RelayURL)
	assert.Equal(t, 8192, cfg.ChunkSize)
	assert.True(t, cfg.ForceRelay)

	cfg, err = Load(Options{RelayURL: "ws://flag.example/ws", ChunkSize: 4096})
	require.NoError(t, err)
	assert.Equal(t, "ws://flag.example/ws", cfg.RelayURL)
	assert.Equal(t, 4096, cfg.ChunkSize)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)

	_, err := Load(Options{RelayURL: "http://example.com"})
	assert.Error(t, err)

	_, err = Load(Options{ChunkSize: MaxChunkSize + 1})
	assert.Error(t, err)

	t.Setenv("FORCE_RELAY", "maybe")
	_, err = Load(Options{})
	assert.Error(t, err)
}

func TestRelayAutoSkipsURLValidation(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{RelayURL: RelayAuto})
	require.NoError(t, err)
	assert.Equal(t, RelayAuto, cfg.RelayURL)
}

func TestTURNServers(t *testing.T) {
	cfg := &Config{TURNServer: "turn:relay.example", TURNUser: "u", TURNPass: "p"}

	assert.Equal(t, []string{
		"turn:relay.example:3478?transport=udp",
		"turn:relay.example:3478?transport=tcp",
		"turns:relay.example:5349?transport=tcp",
	}, cfg.GetTURNServers())

	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}

func TestGetRoomLink(t *testing.T) {
	cfg := &Config{RelayURL: "wss://relay.example:8443/ws"}
	assert.Equal(t, "https://relay.example:8443/r/AB12", cfg.GetRoomLink("AB12"))
}

func TestLoadRelay(t *testing.T) {
	clearEnv(t)
	t.Setenv("RELAY_DB", "/tmp/relay.db")

	cfg, err := LoadRelay(RelayOptions{Addr: ":9999"})
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "/tmp/relay.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
}
