// Package signaling carries the small control messages that bootstrap a peer
// channel. Both parties talk to a relay that stores an ordered stream of
// messages per room; each party consumes the other party's messages exactly
// once.
package signaling

import (
	"context"
	"errors"

	"github.com/BioHazard786/Roomdrop/internal/room"
)

var (
	ErrRelayUnavailable = errors.New("relay unavailable")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrRoomExists       = errors.New("room already exists")
)

// Disconnector is implemented by relays whose transport can drop. Done is
// closed once the relay can no longer deliver messages.
type Disconnector interface {
	Done() <-chan struct{}
}

// Relay is the contract the handshake needs from a signaling relay.
type Relay interface {
	// Publish appends msg to the room's stream and returns it stamped with
	// its order key. The caller sets Sender.
	Publish(ctx context.Context, roomID string, msg Message) (Message, error)

	// Subscribe streams the room's unconsumed backlog and then live messages.
	// onMessage sees each message from the opposite role exactly once and
	// in order; the message is consumed on the relay afterwards. Messages
	// from role itself are skipped and left in place. Subscribing again to
	// the same room replaces the earlier subscription.
	Subscribe(ctx context.Context, roomID string, role room.Role, onMessage func(Message)) (func(), error)

	RoomExists(ctx context.Context, roomID string) (bool, error)
	CreateRoomRecord(ctx context.Context, roomID string) error

	// JoinRoomRecord marks the room as taken by a responder.
	JoinRoomRecord(ctx context.Context, roomID string) error

	// LeaveRoomRecord frees a joined room for another responder. Leaving a
	// missing room is not an error.
	LeaveRoomRecord(ctx context.Context, roomID string) error

	CloseRoomRecord(ctx context.Context, roomID string) error
}
