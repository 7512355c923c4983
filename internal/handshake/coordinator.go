package handshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/Roomdrop/internal/events"
	"github.com/BioHazard786/Roomdrop/internal/peer"
	"github.com/BioHazard786/Roomdrop/internal/room"
	"github.com/BioHazard786/Roomdrop/internal/signaling"
)

const closeTimeout = 3 * time.Second

// Options configure a Coordinator. Relay and Factory are required.
type Options struct {
	Relay   signaling.Relay
	Factory peer.Factory
	Events  events.Handler

	// ClientType is announced to the peer ("cli" or "web").
	ClientType string

	// OnOpen is called once the peer channel opens, with the client type
	// the peer announced.
	OnOpen func(ch peer.Channel, peerClientType string)

	// OnMessage receives every message arriving on the channel.
	OnMessage func(data []byte)

	// OnClosed is called once when the handshake reaches Closed.
	OnClosed func()

	// OnError receives non-fatal errors after they are notified.
	OnError func(error)
}

// Coordinator runs one side of the room handshake.
type Coordinator struct {
	opts Options
	log  *slog.Logger

	mu             sync.Mutex
	room           *room.Room
	state          State
	channel        peer.Channel
	cancelSub      func()
	candidates     []peer.Candidate
	peerClientType string

	// stop is closed when the handshake reaches Closed.
	stop chan struct{}
}

// New returns an idle coordinator.
func New(opts Options) *Coordinator {
	if opts.Events == nil {
		opts.Events = events.Nop
	}
	return &Coordinator{
		opts:  opts,
		log:   slog.Default(),
		state: Idle,
		stop:  make(chan struct{}),
	}
}

// State returns the current handshake state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room returns a copy of the local room view, or nil before Create/Join.
func (c *Coordinator) Room() *room.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return nil
	}
	r := *c.room
	return &r
}

// PeerClientType is the client type the peer announced, if any.
func (c *Coordinator) PeerClientType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerClientType
}

// begin validates ev from Idle and moves to RoomPending.
func (c *Coordinator) begin(roomID string, role room.Role, ev Event) (*room.Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := Transition(role, c.state, ev)
	if err != nil {
		return nil, err
	}
	c.room = room.New(roomID, role)
	c.state = next
	c.log = slog.Default().With("room", c.room.ID, "role", role.String())
	return c.room, nil
}

// abort returns a failed Create/Join to Idle.
func (c *Coordinator) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == RoomPending {
		c.state = Idle
		c.room = nil
	}
}

// attach stores the subscription cancel func, or runs it if the coordinator
// was closed meanwhile.
func (c *Coordinator) attach(cancel func()) bool {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		cancel()
		return false
	}
	c.cancelSub = cancel
	c.mu.Unlock()
	return true
}

// detach cancels and forgets the stored subscription.
func (c *Coordinator) detach() {
	c.mu.Lock()
	cancel := c.cancelSub
	c.cancelSub = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// watchRelay closes the handshake if the relay connection drops before the
// peer channel opens. Once the channel is open the relay is not needed.
func (c *Coordinator) watchRelay() {
	d, ok := c.opts.Relay.(signaling.Disconnector)
	if !ok {
		return
	}
	go func() {
		select {
		case <-c.stop:
			return
		case <-d.Done():
		}

		pending := func(s State) bool { return s == RoomPending || s == PeerConnecting }
		if !pending(c.State()) {
			return
		}
		c.log.Warn("relay connection lost")
		c.opts.Events.OnNotify("Lost connection to the relay server", events.KindError)
		if c.opts.OnError != nil {
			c.opts.OnError(signaling.ErrRelayUnavailable)
		}
		if c.shutdownIf(EventChannelError, pending) {
			c.opts.Events.OnStatusChange("Relay disconnected")
		}
	}()
}

// Create registers roomID on the relay and waits for a responder.
func (c *Coordinator) Create(ctx context.Context, roomID string) error {
	rm, err := c.begin(roomID, room.Initiator, EventCreate)
	if err != nil {
		return err
	}

	if err := c.opts.Relay.CreateRoomRecord(ctx, rm.ID); err != nil {
		c.abort()
		c.opts.Events.OnNotify("Error creating room. Please try again.", events.KindError)
		return fmt.Errorf("create room %s: %w", rm.ID, err)
	}

	cancel, err := c.opts.Relay.Subscribe(ctx, rm.ID, room.Initiator, c.handleMessage)
	if err != nil {
		c.abort()
		c.closeRoomRecord(rm.ID)
		c.opts.Events.OnNotify("Error creating room. Please try again.", events.KindError)
		return fmt.Errorf("subscribe to room %s: %w", rm.ID, err)
	}
	if !c.attach(cancel) {
		return nil
	}
	c.watchRelay()

	c.log.Info("room created")
	c.opts.Events.OnStatusChange(fmt.Sprintf("Room created: %s", rm.ID))
	c.opts.Events.OnNotify(fmt.Sprintf("Room %s created! Share this ID with your friend.", rm.ID), events.KindSuccess)
	return nil
}

// Join enters an existing room and announces the responder. A missing room
// fails with signaling.ErrRoomNotFound before anything is published.
func (c *Coordinator) Join(ctx context.Context, roomID string) error {
	rm, err := c.begin(roomID, room.Responder, EventJoin)
	if err != nil {
		return err
	}

	fail := func(notify string, err error) error {
		c.abort()
		c.opts.Events.OnNotify(notify, events.KindError)
		return fmt.Errorf("join room %s: %w", rm.ID, err)
	}

	exists, err := c.opts.Relay.RoomExists(ctx, rm.ID)
	if err != nil {
		return fail("Error joining room. Please try again.", err)
	}
	if !exists {
		return fail("Room not found! Please check the room ID.", signaling.ErrRoomNotFound)
	}

	if err := c.opts.Relay.JoinRoomRecord(ctx, rm.ID); err != nil {
		if errors.Is(err, signaling.ErrRoomFull) {
			return fail("Room is full.", err)
		}
		return fail("Error joining room. Please try again.", err)
	}

	// Past this point a failure must free the room again or every retry
	// would find it full.
	unjoin := func(notify string, err error) error {
		leaveCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := c.opts.Relay.LeaveRoomRecord(leaveCtx, rm.ID); err != nil {
			c.log.Debug("leave room record failed", "error", err)
		}
		return fail(notify, err)
	}

	cancel, err := c.opts.Relay.Subscribe(ctx, rm.ID, room.Responder, c.handleMessage)
	if err != nil {
		return unjoin("Error joining room. Please try again.", err)
	}
	if !c.attach(cancel) {
		return nil
	}

	if _, err := c.opts.Relay.Publish(ctx, rm.ID, signaling.NewPeerJoined(c.opts.ClientType)); err != nil {
		c.detach()
		return unjoin("Error joining room. Please try again.", err)
	}
	c.watchRelay()

	c.log.Info("joined room")
	c.opts.Events.OnStatusChange(fmt.Sprintf("Joined room: %s", rm.ID))
	c.opts.Events.OnNotify(fmt.Sprintf("Successfully joined room %s", rm.ID), events.KindSuccess)
	return nil
}

// Leave tears the session down locally. The peer is not told.
func (c *Coordinator) Leave() {
	if !c.shutdown(EventLeave) {
		return
	}
	c.opts.Events.OnStatusChange("Disconnected")
	c.opts.Events.OnNotify("Left the room", events.KindInfo)
}

// shutdown moves to Closed on ev and releases the channel, the subscription
// and the room record. It reports whether this call performed the close.
func (c *Coordinator) shutdown(ev Event) bool {
	return c.shutdownIf(ev, nil)
}

// shutdownIf is shutdown limited to states accepted by allow.
func (c *Coordinator) shutdownIf(ev Event, allow func(State) bool) bool {
	c.mu.Lock()
	if allow != nil && !allow(c.state) {
		c.mu.Unlock()
		return false
	}
	role := room.Initiator
	if c.room != nil {
		role = c.room.Role
	}
	next, err := Transition(role, c.state, ev)
	if err != nil {
		c.mu.Unlock()
		return false
	}

	c.state = next
	close(c.stop)
	ch, cancel, rm := c.channel, c.cancelSub, c.room
	c.cancelSub = nil
	c.candidates = nil
	if rm != nil {
		rm.State = room.StateClosed
	}
	c.mu.Unlock()

	if ch != nil {
		if ev == EventLeave {
			ch.Close()
		} else {
			// Called from a channel callback; closing inline may wait on it.
			go ch.Close()
		}
	}
	if cancel != nil {
		cancel()
	}
	if rm != nil {
		c.closeRoomRecord(rm.ID)
	}

	c.log.Info("handshake closed", "event", ev.String())
	if c.opts.OnClosed != nil {
		c.opts.OnClosed()
	}
	return true
}

func (c *Coordinator) closeRoomRecord(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := c.opts.Relay.CloseRoomRecord(ctx, roomID); err != nil {
		c.log.Debug("close room record failed", "error", err)
	}
}

// advance applies ev if the current state accepts it.
func (c *Coordinator) advance(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room == nil {
		return fmt.Errorf("%w: no room", ErrInvalidTransition)
	}
	next, err := Transition(c.room.Role, c.state, ev)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// check validates ev without applying it.
func (c *Coordinator) check(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room == nil {
		return fmt.Errorf("%w: no room", ErrInvalidTransition)
	}
	_, err := Transition(c.room.Role, c.state, ev)
	return err
}

func (c *Coordinator) roomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return ""
	}
	return c.room.ID
}

func (c *Coordinator) role() room.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return ""
	}
	return c.room.Role
}

func eventFor(kind signaling.Kind) (Event, bool) {
	switch kind {
	case signaling.KindPeerJoined:
		return EventPeerJoined, true
	case signaling.KindOffer:
		return EventOffer, true
	case signaling.KindAnswer:
		return EventAnswer, true
	case signaling.KindCandidate:
		return EventCandidate, true
	default:
		return 0, false
	}
}

// handleMessage processes one control message from the peer. Calls are
// serialized by the relay subscription.
func (c *Coordinator) handleMessage(msg signaling.Message) {
	if msg.Sender == c.role() {
		return
	}
	ev, ok := eventFor(msg.Kind)
	if !ok {
		return
	}
	if err := c.check(ev); err != nil {
		c.log.Debug("ignoring control message", "type", string(msg.Kind), "error", err)
		return
	}

	switch ev {
	case EventPeerJoined:
		c.onPeerJoined(msg)
	case EventOffer:
		c.onOffer(msg)
	case EventAnswer:
		c.onAnswer(msg)
	case EventCandidate:
		c.onCandidate(msg)
	}
}

func (c *Coordinator) onPeerJoined(msg signaling.Message) {
	if err := c.advance(EventPeerJoined); err != nil {
		return
	}
	c.mu.Lock()
	c.peerClientType = msg.ClientType
	c.mu.Unlock()

	c.opts.Events.OnNotify("Friend joined the room!", events.KindSuccess)

	ch, err := c.ensureChannel()
	if err != nil {
		c.reportError("Error creating connection", err)
		return
	}

	offer, err := ch.CreateOffer()
	if err != nil {
		c.reportError("Error creating connection", err)
		return
	}
	if err := ch.SetLocalDescription(offer); err != nil {
		c.reportError("Error creating connection", err)
		return
	}
	if err := c.publish(signaling.NewOffer(offer, c.opts.ClientType)); err != nil {
		c.reportError("Error creating connection", err)
		return
	}
	c.opts.Events.OnStatusChange("Connection offer sent")
}

func (c *Coordinator) onOffer(msg signaling.Message) {
	ch, err := c.ensureChannel()
	if err != nil {
		c.reportError("Error creating connection", err)
		return
	}

	if err := ch.SetRemoteDescription(*msg.Description); err != nil {
		c.reportError("Connection error occurred", fmt.Errorf("%w: offer: %v", ErrDescriptorApplyFailed, err))
		return
	}
	if err := c.advance(EventOffer); err != nil {
		return
	}
	c.mu.Lock()
	c.peerClientType = msg.ClientType
	c.mu.Unlock()

	c.flushCandidates(ch)

	answer, err := ch.CreateAnswer()
	if err != nil {
		c.reportError("Error creating connection", err)
		return
	}
	if err := ch.SetLocalDescription(answer); err != nil {
		c.reportError("Error creating connection", err)
		return
	}
	if err := c.publish(signaling.NewAnswer(answer)); err != nil {
		c.reportError("Error creating connection", err)
		return
	}
	c.opts.Events.OnStatusChange("Connection answer sent")
}

func (c *Coordinator) onAnswer(msg signaling.Message) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return
	}

	if err := ch.SetRemoteDescription(*msg.Description); err != nil {
		c.reportError("Connection error occurred", fmt.Errorf("%w: answer: %v", ErrDescriptorApplyFailed, err))
		return
	}
	c.flushCandidates(ch)
}

// onCandidate applies a remote candidate, or buffers it until the channel
// exists and has a remote description.
func (c *Coordinator) onCandidate(msg signaling.Message) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch == nil || !ch.HasRemoteDescription() {
		c.mu.Lock()
		c.candidates = append(c.candidates, *msg.Candidate)
		c.mu.Unlock()
		return
	}
	c.applyCandidate(ch, *msg.Candidate)
}

// flushCandidates replays buffered candidates in arrival order.
func (c *Coordinator) flushCandidates(ch peer.Channel) {
	c.mu.Lock()
	buffered := c.candidates
	c.candidates = nil
	c.mu.Unlock()

	for _, cand := range buffered {
		c.applyCandidate(ch, cand)
	}
}

func (c *Coordinator) applyCandidate(ch peer.Channel, cand peer.Candidate) {
	if err := ch.AddRemoteCandidate(cand); err != nil {
		c.reportError("Connection error occurred", fmt.Errorf("%w: candidate: %v", ErrDescriptorApplyFailed, err))
	}
}

func (c *Coordinator) publish(msg signaling.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout*3)
	defer cancel()

	_, err := c.opts.Relay.Publish(ctx, c.roomID(), msg)
	return err
}

// reportError surfaces a failure without changing state. Errors after the
// handshake closed are only logged.
func (c *Coordinator) reportError(text string, err error) {
	c.log.Warn(text, "error", err)
	if c.State() == Closed {
		return
	}
	c.opts.Events.OnNotify(text, events.KindError)
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

// ensureChannel returns the session channel, creating it on first use.
func (c *Coordinator) ensureChannel() (peer.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		return c.channel, nil
	}
	if c.state == Closed {
		return nil, peer.ErrChannelNotReady
	}

	ch, err := c.opts.Factory(c.room.Role, peer.Handlers{
		OnLocalCandidate: c.onLocalCandidate,
		OnOpen:           c.onChannelOpen,
		OnMessage:        c.onChannelMessage,
		OnClose:          func() { c.onChannelDown(nil) },
		OnError:          c.onChannelDown,
	})
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	c.channel = ch
	return ch, nil
}

func (c *Coordinator) onLocalCandidate(cand peer.Candidate) {
	role := c.role()
	if c.State() == Closed {
		return
	}
	if err := c.publish(signaling.NewCandidate(role, cand)); err != nil {
		c.reportError("Connection error occurred", err)
	}
}

func (c *Coordinator) onChannelOpen() {
	if err := c.advance(EventChannelOpen); err != nil {
		c.log.Debug("ignoring channel open", "error", err)
		return
	}

	c.mu.Lock()
	ch, peerType := c.channel, c.peerClientType
	if c.room != nil {
		c.room.State = room.StateActive
	}
	c.mu.Unlock()

	c.log.Info("peer channel open")
	c.opts.Events.OnStatusChange("Connected! Ready to share files.")
	c.opts.Events.OnNotify("Direct connection established!", events.KindSuccess)
	if c.opts.OnOpen != nil {
		c.opts.OnOpen(ch, peerType)
	}
}

func (c *Coordinator) onChannelMessage(data []byte) {
	if c.opts.OnMessage != nil {
		c.opts.OnMessage(data)
	}
}

func (c *Coordinator) onChannelDown(err error) {
	ev := EventChannelClosed
	if err != nil {
		ev = EventChannelError
	}
	if !c.shutdown(ev) {
		return
	}

	c.opts.Events.OnStatusChange("Connection closed")
	if err != nil {
		c.log.Warn("peer channel failed", "error", err)
		c.opts.Events.OnNotify("Connection lost", events.KindError)
	}
}
