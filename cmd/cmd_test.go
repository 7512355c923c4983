package cmd

import (
	"path/filepath"
	"testing"

	"github.com/BioHazard786/Roomdrop/internal/signaling"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"create", "join", "relay", "version"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}

	c, _, err := rootCmd.Find([]string{"receive"})
	require.NoError(t, err)
	assert.Equal(t, "join", c.Name())
}

func TestOpenStore(t *testing.T) {
	mem, err := openStore("")
	require.NoError(t, err)
	defer mem.Close()
	require.NoError(t, mem.CreateRoom("AB12"))

	db, err := openStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.CreateRoom("AB12"))
	assert.ErrorIs(t, db.CreateRoom("AB12"), signaling.ErrRoomExists)
}

func TestRelayLoggerLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, newRelayLogger("debug").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newRelayLogger("bogus").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newRelayLogger("").GetLevel())
}
