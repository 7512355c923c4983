// Package peer abstracts the direct, ordered, message-framed link between the
// two parties of a room. The handshake coordinator drives descriptor exchange
// through it and the transfer engine sends records over it once open.
package peer

import (
	"errors"

	"github.com/BioHazard786/Roomdrop/internal/room"
)

// ErrChannelNotReady is returned by Send before the channel opened or after it closed.
var ErrChannelNotReady = errors.New("channel not ready")

// Label is the data channel label shared by both sides.
const Label = "fileTransfer"

// Description is a session description (offer or answer).
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

const (
	TypeOffer  = "offer"
	TypeAnswer = "answer"
)

// Candidate is a trickled ICE candidate, shaped like RTCIceCandidateInit.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// State of a channel.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Handlers are the channel's event callbacks. Any field may be nil.
//
// OnClose and OnError are terminal: at most one of them fires, once, and
// neither fires after the local side called Close.
type Handlers struct {
	OnLocalCandidate func(Candidate)
	OnOpen           func()
	OnMessage        func([]byte)
	OnClose          func()
	OnError          func(error)
}

// Channel is a bidirectional peer link. Messages sent after OnOpen and
// before OnClose are delivered reliably and in order.
type Channel interface {
	CreateOffer() (Description, error)
	CreateAnswer() (Description, error)
	SetLocalDescription(Description) error
	SetRemoteDescription(Description) error
	AddRemoteCandidate(Candidate) error
	HasRemoteDescription() bool

	Send(data []byte) error
	State() State
	Close() error
}

// Factory constructs a channel for the given local role. The initiator side
// opens the data channel; the responder adopts it.
type Factory func(role room.Role, h Handlers) (Channel, error)
