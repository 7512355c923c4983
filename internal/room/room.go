package room

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"path"
	"strings"
)

// Role is the part a party plays in a room.
type Role string

const (
	// Initiator created the room (Peer A).
	Initiator Role = "initiator"
	// Responder joined the room (Peer B).
	Responder Role = "responder"
)

// Opposite returns the other role in the room.
func (r Role) Opposite() Role {
	if r == Initiator {
		return Responder
	}
	return Initiator
}

func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == Initiator || r == Responder
}

// State is the local view of a room's lifecycle.
type State int

const (
	StateCreated State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Room is one party's view of a two-party room.
type Room struct {
	// ID is the normalized room identifier.
	ID string

	// Role of the local party.
	Role Role

	// State of the local view. The peer may not observe a close.
	State State
}

// New returns a room in the created state.
func New(id string, role Role) *Room {
	return &Room{
		ID:    Normalize(id),
		Role:  role,
		State: StateCreated,
	}
}

const (
	// IDLength is the length of generated room identifiers.
	IDLength = 4

	// MaxIDLength bounds identifiers accepted from users.
	MaxIDLength = 32

	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// ErrInvalidID is returned for identifiers that are empty, too long or not alphanumeric.
var ErrInvalidID = errors.New("invalid room id")

// NewID creates a random, short room ID (e.g. "AB12").
func NewID() string {
	var b strings.Builder
	b.Grow(IDLength)
	for range IDLength {
		b.WriteByte(idAlphabet[randomIndex(len(idAlphabet))])
	}
	return b.String()
}

// Normalize trims surrounding space and upper-cases an identifier.
// Room identifiers are case-insensitive.
func Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Validate normalizes id and checks it is a usable room identifier.
func Validate(id string) (string, error) {
	id = Normalize(id)
	if id == "" || len(id) > MaxIDLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	for _, c := range id {
		if !strings.ContainsRune(idAlphabet, c) {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return id, nil
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("room: failed to generate random index: %v", err))
	}
	return int(n.Int64())
}

// ParseInput accepts a bare room id or a share link such as
// "https://roomdrop.qzz.io/r/AB12" and returns the validated id.
func ParseInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if strings.Contains(input, "/") {
		u, err := url.Parse(input)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, input)
		}
		if q := u.Query().Get("room"); q != "" {
			return Validate(q)
		}
		input = path.Base(strings.TrimRight(u.Path, "/"))
	}
	return Validate(input)
}
