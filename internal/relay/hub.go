package relay

import (
	"github.com/BioHazard786/Roomdrop/internal/signaling"
	"github.com/rs/zerolog"
)

type inbound struct {
	conn *Conn
	req  *signaling.Request
}

// Hub owns all subscriptions. Run is the single goroutine that touches them
// and the store.
type Hub struct {
	store Store
	log   zerolog.Logger

	conns map[*Conn]struct{}
	subs  map[string]map[*Conn]struct{}

	register   chan *Conn
	unregister chan *Conn
	requests   chan inbound
	quit       chan struct{}
	stopped    chan struct{}
}

// NewHub creates a Hub backed by store.
func NewHub(store Store, log zerolog.Logger) *Hub {
	return &Hub{
		store:      store,
		log:        log,
		conns:      make(map[*Conn]struct{}),
		subs:       make(map[string]map[*Conn]struct{}),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		requests:   make(chan inbound),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Run processes registrations and requests until Stop is called.
func (h *Hub) Run() {
	defer close(h.stopped)

	for {
		select {
		case <-h.quit:
			for c := range h.conns {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.conns[c] = struct{}{}
			h.log.Debug().Str("conn", c.id).Str("remote", c.remote).Msg("client registered")

		case c := <-h.unregister:
			if _, ok := h.conns[c]; ok {
				h.drop(c)
				h.log.Debug().Str("conn", c.id).Msg("client unregistered")
			}

		case in := <-h.requests:
			if _, ok := h.conns[in.conn]; !ok {
				continue
			}
			h.handle(in.conn, in.req)
		}
	}
}

// Stop ends Run and closes every connection.
func (h *Hub) Stop() {
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
	<-h.stopped
}

// drop forgets c and closes its send queue. Rooms it created stay until a
// party closes them explicitly.
func (h *Hub) drop(c *Conn) {
	for roomID, members := range h.subs {
		delete(members, c)
		if len(members) == 0 {
			delete(h.subs, roomID)
		}
	}
	delete(h.conns, c)
	close(c.send)
}

// deliver queues f for c, dropping a client whose queue is full.
func (h *Hub) deliver(c *Conn, f *signaling.Frame) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	select {
	case c.send <- f:
	default:
		h.log.Warn().Str("conn", c.id).Msg("send queue full, dropping client")
		h.drop(c)
	}
}

func (h *Hub) ack(c *Conn, req *signaling.Request, err error) {
	f := &signaling.Frame{Type: signaling.FrameAck, ID: req.ID, OK: err == nil}
	if err != nil {
		f.Error = signaling.ErrorCode(err)
		if f.Error == signaling.CodeInternal {
			h.log.Error().Err(err).Str("op", req.Op).Str("room", req.RoomID).Msg("request failed")
		}
	}
	h.deliver(c, f)
}

func (h *Hub) handle(c *Conn, req *signaling.Request) {
	log := h.log.With().Str("conn", c.id).Str("op", req.Op).Str("room", req.RoomID).Logger()
	log.Debug().Msg("request")

	if req.RoomID == "" {
		h.ack(c, req, signaling.ErrMalformedMessage)
		return
	}

	switch req.Op {
	case signaling.OpCreateRoom:
		err := h.store.CreateRoom(req.RoomID)
		if err == nil {
			log.Info().Msg("room created")
		}
		h.ack(c, req, err)

	case signaling.OpRoomExists:
		exists, err := h.store.RoomExists(req.RoomID)
		if err != nil {
			h.ack(c, req, err)
			return
		}
		h.deliver(c, &signaling.Frame{Type: signaling.FrameAck, ID: req.ID, OK: true, Exists: exists})

	case signaling.OpJoinRoom:
		err := h.store.JoinRoom(req.RoomID)
		if err == nil {
			log.Info().Msg("room joined")
		}
		h.ack(c, req, err)

	case signaling.OpLeaveRoom:
		err := h.store.LeaveRoom(req.RoomID)
		if err == nil {
			log.Info().Msg("room left")
		}
		h.ack(c, req, err)

	case signaling.OpCloseRoom:
		err := h.store.CloseRoom(req.RoomID)
		if err == nil {
			delete(h.subs, req.RoomID)
			log.Info().Msg("room closed")
		}
		h.ack(c, req, err)

	case signaling.OpPublish:
		h.publish(c, req)

	case signaling.OpSubscribe:
		h.subscribe(c, req)

	case signaling.OpUnsubscribe:
		if members, ok := h.subs[req.RoomID]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.subs, req.RoomID)
			}
		}
		h.ack(c, req, nil)

	case signaling.OpConsume:
		h.ack(c, req, h.store.Consume(req.RoomID, req.Order))

	default:
		log.Warn().Msg("unknown op")
		h.ack(c, req, signaling.ErrMalformedMessage)
	}
}

func (h *Hub) publish(c *Conn, req *signaling.Request) {
	if req.Message == nil {
		h.ack(c, req, signaling.ErrMalformedMessage)
		return
	}
	if err := req.Message.Validate(); err != nil {
		h.ack(c, req, err)
		return
	}

	msg, err := h.store.Append(req.RoomID, *req.Message)
	if err != nil {
		h.ack(c, req, err)
		return
	}

	h.deliver(c, &signaling.Frame{Type: signaling.FrameAck, ID: req.ID, OK: true, Message: &msg})
	for member := range h.subs[req.RoomID] {
		h.deliver(member, &signaling.Frame{Type: signaling.FrameEvent, RoomID: req.RoomID, Message: &msg})
	}
}

func (h *Hub) subscribe(c *Conn, req *signaling.Request) {
	pending, err := h.store.Pending(req.RoomID)
	if err != nil {
		h.ack(c, req, err)
		return
	}

	members, ok := h.subs[req.RoomID]
	if !ok {
		members = make(map[*Conn]struct{})
		h.subs[req.RoomID] = members
	}
	members[c] = struct{}{}

	h.ack(c, req, nil)
	for i := range pending {
		h.deliver(c, &signaling.Frame{Type: signaling.FrameEvent, RoomID: req.RoomID, Message: &pending[i]})
	}
}
