package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BioHazard786/Roomdrop/internal/config"
	"github.com/BioHazard786/Roomdrop/internal/discovery"
	"github.com/BioHazard786/Roomdrop/internal/relay"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagRelayAddr     string
	flagRelayDB       string
	flagRelayLogLevel string
	flagRelayMDNS     bool
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay server",
	Long: `Serve the signaling relay that carries room handshakes between peers.

Room state lives in memory unless --db names a SQLite file, in which case
rooms and undelivered control messages survive a restart.

Examples:
  roomdrop relay --addr :8080
  roomdrop relay --db relay.db --mdns`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadRelay(config.RelayOptions{
			Addr:     flagRelayAddr,
			DBPath:   flagRelayDB,
			LogLevel: flagRelayLogLevel,
			MDNS:     flagRelayMDNS,
		})
		if err != nil {
			return err
		}
		return serveRelay(cfg)
	},
}

func init() {
	f := relayCmd.Flags()
	f.StringVar(&flagRelayAddr, "addr", "", "listen address (env RELAY_ADDR, default :8080)")
	f.StringVar(&flagRelayDB, "db", "", "SQLite database path; empty keeps state in memory (env RELAY_DB)")
	f.StringVar(&flagRelayLogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	f.BoolVar(&flagRelayMDNS, "mdns", false, "advertise the relay on the local network")
	rootCmd.AddCommand(relayCmd)
}

func newRelayLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(lvl).With().Timestamp().Caller().Logger()
}

func openStore(path string) (relay.Store, error) {
	if path == "" {
		return relay.NewMemoryStore(), nil
	}
	return relay.OpenSQLite(path)
}

func serveRelay(cfg *config.RelayConfig) error {
	l := newRelayLogger(cfg.LogLevel)

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := relay.NewHub(store, l)
	go hub.Run()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		hub.Stop()
		return err
	}

	srv := &http.Server{
		Handler:           relay.NewRouter(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.MDNS {
		port := ln.Addr().(*net.TCPAddr).Port
		adv, err := discovery.Advertise(discovery.Config{Port: port})
		if err != nil {
			l.Warn().Err(err).Msg("mDNS advertisement failed")
		} else {
			defer adv.Stop()
			l.Info().Int("port", port).Msg("Advertising relay via mDNS")
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		store := "memory"
		if cfg.DBPath != "" {
			store = cfg.DBPath
		}
		l.Info().Str("addr", ln.Addr().String()).Str("store", store).Msg("Starting relay")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		hub.Stop()
		return err
	case <-quit:
	}

	l.Info().Msg("Shutting down relay...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Relay forced to shutdown")
	}
	hub.Stop()
	l.Info().Msg("Relay exited")
	return nil
}
