package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/BioHazard786/Roomdrop/internal/config"
	"github.com/BioHazard786/Roomdrop/internal/discovery"
	"github.com/BioHazard786/Roomdrop/internal/files"
	"github.com/BioHazard786/Roomdrop/internal/peer"
	"github.com/BioHazard786/Roomdrop/internal/session"
	"github.com/BioHazard786/Roomdrop/internal/signaling"
	"github.com/BioHazard786/Roomdrop/internal/transfer"
	"github.com/BioHazard786/Roomdrop/internal/ui"
)

var flagZip bool

// roomRun carries what create and join share once the relay is reachable.
type roomRun struct {
	cfg     *config.Config
	client  *signaling.Client
	sess    *session.Session
	bridge  *ui.Bridge
	summary *ui.Summary
}

func connect(ctx context.Context) (*roomRun, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.RelayURL == config.RelayAuto {
		stop := ui.RunSpinner("Looking for a relay on the local network...")
		url, err := discovery.Browse(ctx, discovery.Config{})
		stop()
		if err != nil {
			return nil, transfer.NewError("discover relay", err)
		}
		cfg.RelayURL = url
		ui.PrintInfof("Using relay %s", url)
	}

	stop := ui.RunConnectionSpinner("Connecting to relay...")
	client, err := signaling.Dial(ctx, cfg.RelayURL, cfg.RequestTimeout)
	stop()
	if err != nil {
		return nil, transfer.NewError("connect to relay", err)
	}
	slog.Info("relay connected", "url", cfg.RelayURL)

	summary := ui.NewSummary()
	bridge := ui.NewBridge(cfg.OutputDir, summary)
	sess := session.New(session.Options{
		Relay:      client,
		Factory:    peer.NewPionFactory(cfg),
		Events:     bridge,
		ClientType: transfer.ClientCLI,
		ChunkSize:  cfg.ChunkSize,
	})

	return &roomRun{cfg: cfg, client: client, sess: sess, bridge: bridge, summary: summary}, nil
}

// chat runs the interactive view until the session ends, then prints the
// summary and optionally zips what was received.
func (r *roomRun) chat(initial []string) error {
	defer r.client.Close()

	registry := session.NewRegistry()
	if err := registry.Add(r.sess); err != nil {
		return err
	}
	defer registry.LeaveAll()

	go func() {
		<-r.sess.Done()
		r.bridge.SessionClosed()
	}()

	if len(initial) > 0 {
		go func() {
			select {
			case <-r.sess.Opened():
				if err := r.sess.SendFiles(initial...); err != nil {
					slog.Error("queueing initial files failed", "error", err)
					return
				}
				infos, _ := files.Validate(initial)
				r.summary.AddSent(len(infos), files.TotalSize(infos))
			case <-r.sess.Done():
			}
		}()
	}

	model := ui.NewChatModel(r.sess.Room().ID, ui.Actions{
		SendText:  r.sess.SendText,
		SendFiles: r.sess.SendFiles,
		Leave:     r.sess.Leave,
	}, r.summary)

	if err := ui.RunChat(model, r.bridge); err != nil {
		return err
	}

	fmt.Println()
	r.summary.Render()
	return r.zipReceived()
}

func (r *roomRun) zipReceived() error {
	if !flagZip {
		return nil
	}
	saved := r.summary.Saved()
	if len(saved) == 0 {
		ui.PrintWarning("Nothing was received, no archive written")
		return nil
	}

	name := fmt.Sprintf("roomdrop-%s.zip", time.Now().Format("20060102-150405"))
	target := files.UniqueName(r.cfg.OutputDir, name)
	if err := files.ZipFiles(target, saved); err != nil {
		return transfer.NewFileError("zip", filepath.Base(target), err)
	}
	ui.PrintSuccessf("Received files bundled into %s", target)
	return nil
}
