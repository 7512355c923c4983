// Package session ties one room handshake to the transfer engine that runs
// over its channel. A Session owns all of its state; Registry indexes
// several of them by room id.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BioHazard786/Roomdrop/internal/events"
	"github.com/BioHazard786/Roomdrop/internal/files"
	"github.com/BioHazard786/Roomdrop/internal/handshake"
	"github.com/BioHazard786/Roomdrop/internal/peer"
	"github.com/BioHazard786/Roomdrop/internal/room"
	"github.com/BioHazard786/Roomdrop/internal/signaling"
	"github.com/BioHazard786/Roomdrop/internal/transfer"
)

// createAttempts bounds retries when a generated room id is already taken.
const createAttempts = 3

// ErrNotConnected is returned when sending before the peer channel opened.
var ErrNotConnected = errors.New("not connected to a peer")

// Options configure a Session. Relay and Factory are required.
type Options struct {
	Relay   signaling.Relay
	Factory peer.Factory
	Events  events.Handler

	// ClientType is announced to the peer; defaults to "cli".
	ClientType string

	// ChunkSize overrides transfer.DefaultChunkSize.
	ChunkSize int

	Clock transfer.Clock
}

// Session is one party's participation in one room.
type Session struct {
	opts  Options
	coord *handshake.Coordinator

	mu     sync.Mutex
	engine *transfer.Engine

	opened    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New returns an idle session.
func New(opts Options) *Session {
	if opts.Events == nil {
		opts.Events = events.Nop
	}
	if opts.ClientType == "" {
		opts.ClientType = transfer.ClientCLI
	}

	s := &Session{opts: opts, opened: make(chan struct{}), done: make(chan struct{})}
	s.coord = handshake.New(handshake.Options{
		Relay:      opts.Relay,
		Factory:    opts.Factory,
		Events:     opts.Events,
		ClientType: opts.ClientType,
		OnOpen:     s.onOpen,
		OnMessage:  s.onMessage,
		OnClosed:   s.onClosed,
		OnError: func(err error) {
			slog.Debug("handshake error", "error", err)
		},
	})
	return s
}

// Create opens a fresh room and returns its id.
func (s *Session) Create(ctx context.Context) (string, error) {
	var err error
	for range createAttempts {
		id := room.NewID()
		err = s.coord.Create(ctx, id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, signaling.ErrRoomExists) {
			return "", err
		}
		slog.Debug("room id taken, retrying", "room", id)
	}
	return "", err
}

// Join enters the room named by id, which may also be a share link.
func (s *Session) Join(ctx context.Context, id string) error {
	roomID, err := room.ParseInput(id)
	if err != nil {
		s.opts.Events.OnNotify("Invalid room ID", events.KindError)
		return err
	}
	return s.coord.Join(ctx, roomID)
}

// SendFiles validates paths and queues them for sending in order.
func (s *Session) SendFiles(paths ...string) error {
	engine := s.activeEngine()
	if engine == nil {
		s.opts.Events.OnNotify("Please wait for connection to be established!", events.KindError)
		return ErrNotConnected
	}

	infos, err := files.Validate(paths)
	if err != nil {
		s.opts.Events.OnNotify("Error reading file", events.KindError)
		return err
	}

	sources := make([]transfer.Source, len(infos))
	for i, info := range infos {
		sources[i] = transfer.FileSource(info)
	}
	if err := engine.Enqueue(sources...); err != nil {
		return fmt.Errorf("queue files: %w", err)
	}
	return nil
}

// SendText sends a chat line. Blank text is ignored.
func (s *Session) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	engine := s.activeEngine()
	if engine == nil {
		s.opts.Events.OnNotify("Please establish a connection first!", events.KindError)
		return ErrNotConnected
	}
	return engine.SendText(text)
}

// Leave closes the session. Partial transfers are dropped without events.
func (s *Session) Leave() {
	s.coord.Leave()
	s.onClosed()
}

// State returns the handshake state.
func (s *Session) State() handshake.State {
	return s.coord.State()
}

// Room returns a copy of the room view, or nil before Create/Join.
func (s *Session) Room() *room.Room {
	return s.coord.Room()
}

// Opened is closed once the peer channel is open and sends are accepted.
func (s *Session) Opened() <-chan struct{} {
	return s.opened
}

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Codec reports the wire codec in use, or "" before the channel opened.
func (s *Session) Codec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return ""
	}
	return s.engine.Codec().Name()
}

func (s *Session) activeEngine() *transfer.Engine {
	if s.coord.State() != handshake.PeerOpen {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func (s *Session) onOpen(ch peer.Channel, peerClientType string) {
	codec := transfer.SelectCodec(peerClientType, s.opts.ClientType)
	engine := transfer.New(ch, transfer.Options{
		Codec:     codec,
		ChunkSize: s.opts.ChunkSize,
		Events:    s.opts.Events,
		Clock:     s.opts.Clock,
	})

	s.mu.Lock()
	s.engine = engine
	s.mu.Unlock()
	close(s.opened)

	slog.Debug("transfer engine ready", "codec", codec.Name(), "peer", peerClientType)
}

func (s *Session) onMessage(data []byte) {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()

	if engine == nil {
		slog.Warn("dropping message before channel open", "bytes", len(data))
		return
	}
	engine.HandleMessage(data)
}

func (s *Session) onClosed() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		engine := s.engine
		s.mu.Unlock()

		if engine != nil {
			engine.Close()
		}
		close(s.done)
	})
}
