package transfer

import (
	"context"
	"sync"

	"github.com/BioHazard786/Roomdrop/internal/events"
)

// DefaultChunkSize is the file slice carried by one file-chunk record.
const DefaultChunkSize = 16 * 1024

// Conn is the outbound half of an open peer channel.
type Conn interface {
	Send(data []byte) error
}

// Options configure an Engine. Zero values select the defaults.
type Options struct {
	Codec     Codec
	ChunkSize int
	Events    events.Handler
	Clock     Clock
}

// Engine sends and receives records over one open channel. Outgoing files
// are sent one at a time by a single worker; chat lines share the send lock
// and slot in between chunks. Incoming records are handled one at a time.
type Engine struct {
	conn      Conn
	codec     Codec
	chunkSize int
	events    events.Handler
	clock     Clock

	ctx    context.Context
	cancel context.CancelFunc

	// sendMu guards single writes; fileMu keeps whole files from interleaving.
	sendMu sync.Mutex
	fileMu sync.Mutex

	queueMu sync.Mutex
	queue   []Source
	wake    chan struct{}

	recvMu  sync.Mutex
	closed  bool
	inbound *inbound
}

// New starts an engine on conn. Close releases it.
func New(conn Conn, opts Options) *Engine {
	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Events == nil {
		opts.Events = events.Nop
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		conn:      conn,
		codec:     opts.Codec,
		chunkSize: opts.ChunkSize,
		events:    opts.Events,
		clock:     opts.Clock,
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
	}
	go e.run()
	return e
}

// Codec returns the codec used for outgoing records.
func (e *Engine) Codec() Codec {
	return e.codec
}

// Close cancels queued and in-flight sends and discards any partial
// inbound transfer. No completion or error events are raised for either.
func (e *Engine) Close() {
	e.cancel()

	e.queueMu.Lock()
	e.queue = nil
	e.queueMu.Unlock()

	e.recvMu.Lock()
	e.closed = true
	e.inbound = nil
	e.recvMu.Unlock()
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	return e.ctx.Err() != nil
}
