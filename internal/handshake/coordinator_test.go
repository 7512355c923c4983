package handshake

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Roomdrop/internal/events"
	"github.com/BioHazard786/Roomdrop/internal/peer"
	"github.com/BioHazard786/Roomdrop/internal/relay"
	"github.com/BioHazard786/Roomdrop/internal/room"
	"github.com/BioHazard786/Roomdrop/internal/signaling"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type probe struct {
	mu       sync.Mutex
	statuses []string
	notes    []string
	errs     []error
	opened   chan string
	closed   chan struct{}
}

func newProbe() *probe {
	return &probe{opened: make(chan string, 1), closed: make(chan struct{}, 2)}
}

func (p *probe) options(relay signaling.Relay, sb *peer.Switchboard, clientType string) Options {
	return Options{
		Relay:      relay,
		Factory:    sb.Factory(),
		ClientType: clientType,
		Events: events.Funcs{
			Status: func(text string) {
				p.mu.Lock()
				p.statuses = append(p.statuses, text)
				p.mu.Unlock()
			},
			Notify: func(text string, kind events.Kind) {
				if kind != events.KindError {
					return
				}
				p.mu.Lock()
				p.notes = append(p.notes, text)
				p.mu.Unlock()
			},
		},
		OnOpen:   func(_ peer.Channel, peerType string) { p.opened <- peerType },
		OnClosed: func() { p.closed <- struct{}{} },
		OnError: func(err error) {
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		},
	}
}

func (p *probe) errorNotes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notes...)
}

func (p *probe) errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errs...)
}

func (p *probe) statusLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.statuses...)
}

func awaitOpen(t *testing.T, p *probe) string {
	t.Helper()
	select {
	case peerType := <-p.opened:
		return peerType
	case <-time.After(waitFor):
		t.Fatal("channel did not open")
		return ""
	}
}

func awaitClosed(t *testing.T, p *probe) {
	t.Helper()
	select {
	case <-p.closed:
	case <-time.After(waitFor):
		t.Fatal("handshake did not close")
	}
}

func TestCreateAndJoinOpenChannel(t *testing.T) {
	ctx := context.Background()
	relay := signaling.NewMemoryRelay()
	sb := peer.NewSwitchboard()
	a, b := newProbe(), newProbe()

	initiator := New(a.options(relay, sb, "cli"))
	responder := New(b.options(relay, sb, "web"))

	require.NoError(t, initiator.Create(ctx, "AB12"))
	assert.Equal(t, RoomPending, initiator.State())

	require.NoError(t, responder.Join(ctx, "ab12"))

	assert.Equal(t, "web", awaitOpen(t, a))
	assert.Equal(t, "cli", awaitOpen(t, b))
	assert.Equal(t, PeerOpen, initiator.State())
	assert.Equal(t, PeerOpen, responder.State())

	assert.Equal(t, "AB12", responder.Room().ID)
	assert.Equal(t, room.StateActive, initiator.Room().State)
	assert.Contains(t, a.statusLog(), "Connection offer sent")
	assert.Contains(t, b.statusLog(), "Connection answer sent")
	assert.Contains(t, a.statusLog(), "Connected! Ready to share files.")
	assert.Empty(t, a.errors())
	assert.Empty(t, b.errors())

	// Every control message was handed over and consumed.
	require.Eventually(t, func() bool { return len(relay.Pending("AB12")) == 0 }, waitFor, 10*time.Millisecond)
}

func TestJoinMissingRoomPublishesNothing(t *testing.T) {
	relay := signaling.NewMemoryRelay()
	p := newProbe()
	c := New(p.options(relay, peer.NewSwitchboard(), "cli"))

	err := c.Join(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, signaling.ErrRoomNotFound)
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, relay.Published("ZZZZ"))

	exists, err := relay.RoomExists(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestJoinFullRoom(t *testing.T) {
	ctx := context.Background()
	relay := signaling.NewMemoryRelay()
	sb := peer.NewSwitchboard()

	require.NoError(t, New(newProbe().options(relay, sb, "cli")).Create(ctx, "AB12"))
	require.NoError(t, New(newProbe().options(relay, sb, "cli")).Join(ctx, "AB12"))

	late := New(newProbe().options(relay, sb, "cli"))
	assert.ErrorIs(t, late.Join(ctx, "AB12"), signaling.ErrRoomFull)
	assert.Equal(t, Idle, late.State())
}

func TestCreateWhileRelayDown(t *testing.T) {
	relay := signaling.NewMemoryRelay()
	relay.SetUnavailable(true)
	c := New(newProbe().options(relay, peer.NewSwitchboard(), "cli"))

	err := c.Create(context.Background(), "AB12")
	assert.ErrorIs(t, err, signaling.ErrRelayUnavailable)
	assert.Equal(t, Idle, c.State())
}

func TestSelfEchoIsIgnored(t *testing.T) {
	ctx := context.Background()
	relay := signaling.NewMemoryRelay()
	sb := peer.NewSwitchboard()
	c := New(newProbe().options(relay, sb, "cli"))
	require.NoError(t, c.Create(ctx, "AB12"))

	// A message claiming to come from the initiator never drives the initiator.
	echo := signaling.NewPeerJoined("cli")
	echo.Sender = room.Initiator
	echo.Order = 99
	c.handleMessage(echo)

	assert.Equal(t, RoomPending, c.State())
	assert.Empty(t, sb.Endpoints())
}

func TestInvalidEventIsIgnored(t *testing.T) {
	ctx := context.Background()
	relay := signaling.NewMemoryRelay()
	sb := peer.NewSwitchboard()
	c := New(newProbe().options(relay, sb, "cli"))
	require.NoError(t, c.Create(ctx, "AB12"))

	// An answer before any offer was sent does not fit RoomPending.
	c.handleMessage(signaling.NewAnswer(peer.Description{Type: peer.TypeAnswer, SDP: "loopback 0"}))
	assert.Equal(t, RoomPending, c.State())
	assert.Empty(t, sb.Endpoints())
}

// publishFromFakeInitiator prepares a room whose backlog holds a candidate
// followed by a matching offer, as if an initiator had raced ahead.
func publishFromFakeInitiator(t *testing.T, relay *signaling.MemoryRelay, sb *peer.Switchboard, offerSDP string) {
	t.Helper()
	ctx := context.Background()

	remote, err := sb.Factory()(room.Initiator, peer.Handlers{})
	require.NoError(t, err)
	offer, err := remote.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, remote.SetLocalDescription(offer))
	if offerSDP != "" {
		offer.SDP = offerSDP
	}

	require.NoError(t, relay.CreateRoomRecord(ctx, "AB12"))
	_, err = relay.Publish(ctx, "AB12", signaling.NewCandidate(room.Initiator, peer.Candidate{Candidate: "candidate:loopback 0"}))
	require.NoError(t, err)
	_, err = relay.Publish(ctx, "AB12", signaling.NewOffer(offer, "cli"))
	require.NoError(t, err)
}

func TestEarlyCandidatesAreReplayed(t *testing.T) {
	relay := signaling.NewMemoryRelay()
	sb := peer.NewSwitchboard()
	publishFromFakeInitiator(t, relay, sb, "")

	p := newProbe()
	c := New(p.options(relay, sb, "cli"))
	require.NoError(t, c.Join(context.Background(), "AB12"))

	require.Eventually(t, func() bool { return len(sb.Endpoints()) == 2 }, waitFor, 10*time.Millisecond)
	local := sb.Endpoints()[1]

	require.Eventually(t, func() bool { return len(local.RemoteCandidates()) == 1 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, "candidate:loopback 0", local.RemoteCandidates()[0].Candidate)
	assert.Equal(t, PeerConnecting, c.State())
	assert.Empty(t, p.errors())
}

func TestBadOfferLeavesStateUnchanged(t *testing.T) {
	relay := signaling.NewMemoryRelay()
	sb := peer.NewSwitchboard()
	publishFromFakeInitiator(t, relay, sb, "v=0 not-a-loopback-descriptor")

	p := newProbe()
	c := New(p.options(relay, sb, "cli"))
	require.NoError(t, c.Join(context.Background(), "AB12"))

	require.Eventually(t, func() bool { return len(p.errors()) == 1 }, waitFor, 10*time.Millisecond)
	assert.ErrorIs(t, p.errors()[0], ErrDescriptorApplyFailed)
	assert.Equal(t, RoomPending, c.State())

	// The early candidate stays buffered; nothing was applied.
	local := sb.Endpoints()[1]
	assert.Empty(t, local.RemoteCandidates())
}

func TestLeaveClosesBothSides(t *testing.T) {
	ctx := context.Background()
	relay := signaling.NewMemoryRelay()
	sb := peer.NewSwitchboard()
	a, b := newProbe(), newProbe()

	initiator := New(a.options(relay, sb, "cli"))
	responder := New(b.options(relay, sb, "cli"))
	require.NoError(t, initiator.Create(ctx, "AB12"))
	require.NoError(t, responder.Join(ctx, "AB12"))
	awaitOpen(t, a)
	awaitOpen(t, b)

	initiator.Leave()
	assert.Equal(t, Closed, initiator.State())
	awaitClosed(t, a)

	// The responder only learns through its channel closing.
	awaitClosed(t, b)
	assert.Equal(t, Closed, responder.State())
	assert.Contains(t, b.statusLog(), "Connection closed")

	exists, err := relay.RoomExists(ctx, "AB12")
	require.NoError(t, err)
	assert.False(t, exists)

	// Leave is idempotent and Closed is terminal.
	initiator.Leave()
	assert.ErrorIs(t, initiator.Create(ctx, "CD34"), ErrInvalidTransition)
}

func TestChannelErrorCloses(t *testing.T) {
	ctx := context.Background()
	relay := signaling.NewMemoryRelay()
	sb := peer.NewSwitchboard()
	a, b := newProbe(), newProbe()

	initiator := New(a.options(relay, sb, "cli"))
	responder := New(b.options(relay, sb, "cli"))
	require.NoError(t, initiator.Create(ctx, "AB12"))
	require.NoError(t, responder.Join(ctx, "AB12"))
	awaitOpen(t, a)
	awaitOpen(t, b)

	sb.Endpoints()[0].Fail(errors.New("ice failed"))

	awaitClosed(t, a)
	awaitClosed(t, b)
	assert.Equal(t, Closed, initiator.State())
	assert.Equal(t, Closed, responder.State())
}

// failingPublish refuses publishes while fail is set.
type failingPublish struct {
	*signaling.MemoryRelay
	fail bool
}

func (r *failingPublish) Publish(ctx context.Context, roomID string, msg signaling.Message) (signaling.Message, error) {
	if r.fail {
		return signaling.Message{}, signaling.ErrRelayUnavailable
	}
	return r.MemoryRelay.Publish(ctx, roomID, msg)
}

func TestFailedJoinFreesTheRoom(t *testing.T) {
	ctx := context.Background()
	relay := &failingPublish{MemoryRelay: signaling.NewMemoryRelay(), fail: true}
	sb := peer.NewSwitchboard()

	require.NoError(t, New(newProbe().options(relay, sb, "cli")).Create(ctx, "AB12"))

	first := New(newProbe().options(relay, sb, "cli"))
	assert.ErrorIs(t, first.Join(ctx, "AB12"), signaling.ErrRelayUnavailable)
	assert.Equal(t, Idle, first.State())

	relay.fail = false
	retry := New(newProbe().options(relay, sb, "cli"))
	require.NoError(t, retry.Join(ctx, "AB12"))
	assert.Equal(t, RoomPending, retry.State())
}

func TestRelayLossBeforeOpenCloses(t *testing.T) {
	hub := relay.NewHub(relay.NewMemoryStore(), zerolog.Nop())
	go hub.Run()
	srv := httptest.NewServer(relay.NewRouter(hub))
	defer srv.Close()

	client, err := signaling.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", time.Second)
	require.NoError(t, err)
	defer client.Close()

	p := newProbe()
	c := New(p.options(client, peer.NewSwitchboard(), "cli"))
	require.NoError(t, c.Create(context.Background(), "AB12"))
	assert.Equal(t, RoomPending, c.State())

	srv.CloseClientConnections()
	hub.Stop()

	awaitClosed(t, p)
	assert.Equal(t, Closed, c.State())
	assert.Contains(t, p.errorNotes(), "Lost connection to the relay server")
	assert.Contains(t, p.statusLog(), "Relay disconnected")
	require.Len(t, p.errors(), 1)
	assert.ErrorIs(t, p.errors()[0], signaling.ErrRelayUnavailable)
}

func TestLeaveStopsRelayWatch(t *testing.T) {
	hub := relay.NewHub(relay.NewMemoryStore(), zerolog.Nop())
	go hub.Run()
	srv := httptest.NewServer(relay.NewRouter(hub))
	defer func() {
		srv.Close()
		hub.Stop()
	}()

	client, err := signaling.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", time.Second)
	require.NoError(t, err)

	p := newProbe()
	c := New(p.options(client, peer.NewSwitchboard(), "cli"))
	require.NoError(t, c.Create(context.Background(), "AB12"))
	c.Leave()
	require.NoError(t, client.Close())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, p.errorNotes())
}
