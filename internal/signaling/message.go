package signaling

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/Roomdrop/internal/peer"
	"github.com/BioHazard786/Roomdrop/internal/room"
)

var (
	ErrUnknownKind      = errors.New("unknown control message kind")
	ErrMalformedMessage = errors.New("malformed control message")
)

// Kind tags a control message.
type Kind string

const (
	KindOffer      Kind = "offer"
	KindAnswer     Kind = "answer"
	KindCandidate  Kind = "ice-candidate"
	KindPeerJoined Kind = "peer-joined"
)

// Message is a control message exchanged through the relay. Order is
// assigned by the relay and increases monotonically per room.
type Message struct {
	Order       int64             `json:"order"`
	Sender      room.Role         `json:"sender"`
	Kind        Kind              `json:"type"`
	Description *peer.Description `json:"description,omitempty"`
	Candidate   *peer.Candidate   `json:"candidate,omitempty"`
	ClientType  string            `json:"client_type,omitempty"`
}

// NewPeerJoined announces the responder to the initiator.
func NewPeerJoined(clientType string) Message {
	return Message{Sender: room.Responder, Kind: KindPeerJoined, ClientType: clientType}
}

// NewOffer wraps the initiator's offer.
func NewOffer(d peer.Description, clientType string) Message {
	return Message{Sender: room.Initiator, Kind: KindOffer, Description: &d, ClientType: clientType}
}

// NewAnswer wraps the responder's answer.
func NewAnswer(d peer.Description) Message {
	return Message{Sender: room.Responder, Kind: KindAnswer, Description: &d}
}

// NewCandidate wraps a local ICE candidate.
func NewCandidate(sender room.Role, c peer.Candidate) Message {
	return Message{Sender: sender, Kind: KindCandidate, Candidate: &c}
}

// Validate checks the kind tag and that the kind's payload is present.
func (m Message) Validate() error {
	if !m.Sender.Valid() {
		return fmt.Errorf("%w: sender %q", ErrMalformedMessage, m.Sender)
	}

	switch m.Kind {
	case KindPeerJoined:
		return nil
	case KindOffer, KindAnswer:
		if m.Description == nil || m.Description.SDP == "" {
			return fmt.Errorf("%w: %s without description", ErrMalformedMessage, m.Kind)
		}
		if m.Description.Type != string(m.Kind) {
			return fmt.Errorf("%w: %s carries %q description", ErrMalformedMessage, m.Kind, m.Description.Type)
		}
		return nil
	case KindCandidate:
		if m.Candidate == nil || m.Candidate.Candidate == "" {
			return fmt.Errorf("%w: candidate without payload", ErrMalformedMessage)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
}
