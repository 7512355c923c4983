// Package handshake drives a room from creation or join to an open peer
// channel. Transition is the complete state machine; Coordinator performs
// the relay and channel work around it.
package handshake

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/Roomdrop/internal/room"
)

var (
	// ErrInvalidTransition is returned for an event the current state does not accept.
	ErrInvalidTransition = errors.New("invalid handshake transition")

	// ErrDescriptorApplyFailed wraps failures to apply a remote description or candidate.
	ErrDescriptorApplyFailed = errors.New("failed to apply remote descriptor")
)

// State of the handshake.
type State int

const (
	Idle State = iota
	RoomPending
	PeerConnecting
	PeerOpen
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RoomPending:
		return "room-pending"
	case PeerConnecting:
		return "peer-connecting"
	case PeerOpen:
		return "peer-open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives a transition.
type Event int

const (
	EventCreate Event = iota
	EventJoin
	EventPeerJoined
	EventOffer
	EventAnswer
	EventCandidate
	EventChannelOpen
	EventChannelClosed
	EventChannelError
	EventLeave
)

func (e Event) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventJoin:
		return "join"
	case EventPeerJoined:
		return "peer-joined"
	case EventOffer:
		return "offer"
	case EventAnswer:
		return "answer"
	case EventCandidate:
		return "candidate"
	case EventChannelOpen:
		return "channel-open"
	case EventChannelClosed:
		return "channel-closed"
	case EventChannelError:
		return "channel-error"
	case EventLeave:
		return "leave"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Transition returns the state reached from `from` on ev for the given role.
func Transition(role room.Role, from State, ev Event) (State, error) {
	invalid := func() (State, error) {
		return from, fmt.Errorf("%w: %s in %s on %s", ErrInvalidTransition, role, from, ev)
	}

	if ev == EventLeave {
		if from == Closed {
			return invalid()
		}
		return Closed, nil
	}

	switch from {
	case Idle:
		switch {
		case ev == EventCreate && role == room.Initiator:
			return RoomPending, nil
		case ev == EventJoin && role == room.Responder:
			return RoomPending, nil
		}

	case RoomPending:
		switch {
		case ev == EventPeerJoined && role == room.Initiator:
			return PeerConnecting, nil
		case ev == EventOffer && role == room.Responder:
			return PeerConnecting, nil
		case ev == EventCandidate:
			return RoomPending, nil
		case ev == EventChannelClosed, ev == EventChannelError:
			return Closed, nil
		}

	case PeerConnecting:
		switch {
		case ev == EventAnswer && role == room.Initiator:
			return PeerConnecting, nil
		case ev == EventOffer && role == room.Responder:
			return PeerConnecting, nil
		case ev == EventCandidate:
			return PeerConnecting, nil
		case ev == EventChannelOpen:
			return PeerOpen, nil
		case ev == EventChannelClosed, ev == EventChannelError:
			return Closed, nil
		}

	case PeerOpen:
		switch ev {
		case EventCandidate:
			return PeerOpen, nil
		case EventChannelClosed, EventChannelError:
			return Closed, nil
		}
	}

	return invalid()
}
