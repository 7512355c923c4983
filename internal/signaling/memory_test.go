package signaling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Roomdrop/internal/peer"
	"github.com/BioHazard786/Roomdrop/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu   sync.Mutex
	msgs []Message
}

func (b *inbox) add(m Message) {
	b.mu.Lock()
	b.msgs = append(b.msgs, m)
	b.mu.Unlock()
}

func (b *inbox) snapshot() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.msgs...)
}

func (b *inbox) len() int {
	return len(b.snapshot())
}

func offer() peer.Description {
	return peer.Description{Type: peer.TypeOffer, SDP: "v=0"}
}

func newRoom(t *testing.T, r *MemoryRelay, id string) {
	t.Helper()
	require.NoError(t, r.CreateRoomRecord(context.Background(), id))
}

func TestMemoryRelayRoomRecords(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRelay()

	exists, err := r.RoomExists(ctx, "AB12")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.ErrorIs(t, r.JoinRoomRecord(ctx, "AB12"), ErrRoomNotFound)

	newRoom(t, r, "AB12")
	assert.ErrorIs(t, r.CreateRoomRecord(ctx, "AB12"), ErrRoomExists)

	exists, err = r.RoomExists(ctx, "AB12")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, r.JoinRoomRecord(ctx, "AB12"))
	assert.ErrorIs(t, r.JoinRoomRecord(ctx, "AB12"), ErrRoomFull)
	require.NoError(t, r.LeaveRoomRecord(ctx, "AB12"))
	require.NoError(t, r.JoinRoomRecord(ctx, "AB12"))

	require.NoError(t, r.CloseRoomRecord(ctx, "AB12"))
	require.NoError(t, r.CloseRoomRecord(ctx, "AB12"))
	exists, err = r.RoomExists(ctx, "AB12")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryRelayPublishStampsOrder(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRelay()
	newRoom(t, r, "AB12")

	first, err := r.Publish(ctx, "AB12", NewPeerJoined("cli"))
	require.NoError(t, err)
	second, err := r.Publish(ctx, "AB12", NewOffer(offer(), "cli"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Order)
	assert.Equal(t, int64(2), second.Order)
	assert.Equal(t, room.Responder, first.Sender)

	_, err = r.Publish(ctx, "ZZZZ", NewPeerJoined("cli"))
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSubscribeReplaysBacklogAndConsumes(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRelay()
	newRoom(t, r, "AB12")

	_, err := r.Publish(ctx, "AB12", NewPeerJoined("web"))
	require.NoError(t, err)

	var got inbox
	cancel, err := r.Subscribe(ctx, "AB12", room.Initiator, got.add)
	require.NoError(t, err)
	defer cancel()

	_, err = r.Publish(ctx, "AB12", NewAnswer(peer.Description{Type: peer.TypeAnswer, SDP: "v=0"}))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return got.len() == 2 }, time.Second, 5*time.Millisecond)
	msgs := got.snapshot()
	assert.Equal(t, KindPeerJoined, msgs[0].Kind)
	assert.Equal(t, "web", msgs[0].ClientType)
	assert.Equal(t, KindAnswer, msgs[1].Kind)

	require.Eventually(t, func() bool { return len(r.Pending("AB12")) == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubscribeSkipsSelfEchoWithoutConsuming(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRelay()
	newRoom(t, r, "AB12")

	var got inbox
	cancel, err := r.Subscribe(ctx, "AB12", room.Initiator, got.add)
	require.NoError(t, err)
	defer cancel()

	_, err = r.Publish(ctx, "AB12", NewOffer(offer(), "cli"))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, got.len())
	require.Len(t, r.Pending("AB12"), 1)

	// The responder still reads the offer later.
	var responder inbox
	cancelResponder, err := r.Subscribe(ctx, "AB12", room.Responder, responder.add)
	require.NoError(t, err)
	defer cancelResponder()

	require.Eventually(t, func() bool { return responder.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, KindOffer, responder.snapshot()[0].Kind)
}

func TestSubscribeDeliversDuplicatesOnce(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRelay()
	newRoom(t, r, "AB12")

	var got inbox
	cancel, err := r.Subscribe(ctx, "AB12", room.Responder, got.add)
	require.NoError(t, err)
	defer cancel()

	_, err = r.Publish(ctx, "AB12", NewOffer(offer(), "cli"))
	require.NoError(t, err)
	_, err = r.Publish(ctx, "AB12", NewCandidate(room.Initiator, peer.Candidate{Candidate: "candidate:1"}))
	require.NoError(t, err)

	r.Redeliver("AB12")
	r.Redeliver("AB12")

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 2, got.len())
	msgs := got.snapshot()
	assert.Equal(t, int64(1), msgs[0].Order)
	assert.Equal(t, int64(2), msgs[1].Order)
}

func TestSubscribeDropsInvalidMessages(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRelay()
	newRoom(t, r, "AB12")

	var got inbox
	cancel, err := r.Subscribe(ctx, "AB12", room.Responder, got.add)
	require.NoError(t, err)
	defer cancel()

	_, err = r.Publish(ctx, "AB12", Message{Sender: room.Initiator, Kind: "bogus"})
	require.NoError(t, err)
	_, err = r.Publish(ctx, "AB12", Message{Sender: room.Initiator, Kind: KindOffer})
	require.NoError(t, err)
	_, err = r.Publish(ctx, "AB12", NewOffer(offer(), "cli"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(3), got.snapshot()[0].Order)
	require.Eventually(t, func() bool { return len(r.Pending("AB12")) == 0 }, time.Second, 5*time.Millisecond)
}

func TestResubscribeReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRelay()
	newRoom(t, r, "AB12")

	var first, second inbox
	_, err := r.Subscribe(ctx, "AB12", room.Responder, first.add)
	require.NoError(t, err)
	cancel, err := r.Subscribe(ctx, "AB12", room.Responder, second.add)
	require.NoError(t, err)
	defer cancel()

	_, err = r.Publish(ctx, "AB12", NewOffer(offer(), "cli"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return second.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, first.len())
}

func TestMemoryRelayUnavailable(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRelay()
	newRoom(t, r, "AB12")
	r.SetUnavailable(true)

	_, err := r.Publish(ctx, "AB12", NewPeerJoined("cli"))
	assert.ErrorIs(t, err, ErrRelayUnavailable)
	_, err = r.RoomExists(ctx, "AB12")
	assert.ErrorIs(t, err, ErrRelayUnavailable)
	_, err = r.Subscribe(ctx, "AB12", room.Initiator, func(Message) {})
	assert.ErrorIs(t, err, ErrRelayUnavailable)

	r.SetUnavailable(false)
	_, err = r.Publish(ctx, "AB12", NewPeerJoined("cli"))
	assert.NoError(t, err)
}

func TestMessageValidate(t *testing.T) {
	sdpMid := "0"
	tests := []struct {
		name string
		msg  Message
		want error
	}{
		{"peer joined", NewPeerJoined("cli"), nil},
		{"offer", NewOffer(offer(), "cli"), nil},
		{"answer", NewAnswer(peer.Description{Type: peer.TypeAnswer, SDP: "v=0"}), nil},
		{"candidate", NewCandidate(room.Responder, peer.Candidate{Candidate: "candidate:1", SDPMid: &sdpMid}), nil},
		{"unknown kind", Message{Sender: room.Initiator, Kind: "hello"}, ErrUnknownKind},
		{"no sender", Message{Kind: KindPeerJoined}, ErrMalformedMessage},
		{"offer without sdp", Message{Sender: room.Initiator, Kind: KindOffer}, ErrMalformedMessage},
		{"answer typed as offer", Message{Sender: room.Responder, Kind: KindAnswer, Description: &peer.Description{Type: peer.TypeOffer, SDP: "v=0"}}, ErrMalformedMessage},
		{"empty candidate", Message{Sender: room.Initiator, Kind: KindCandidate, Candidate: &peer.Candidate{}}, ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestErrorCodeRoundTrip(t *testing.T) {
	for _, err := range []error{ErrRoomNotFound, ErrRoomFull, ErrRoomExists} {
		assert.ErrorIs(t, codeError(ErrorCode(err)), err)
	}
	assert.Equal(t, CodeInternal, ErrorCode(assert.AnError))
}
