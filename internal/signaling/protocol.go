package signaling

import (
	"errors"
	"fmt"
)

// Wire operations sent by a client to the relay server.
const (
	OpCreateRoom  = "create_room"
	OpRoomExists  = "room_exists"
	OpJoinRoom    = "join_room"
	OpLeaveRoom   = "leave_room"
	OpCloseRoom   = "close_room"
	OpPublish     = "publish"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpConsume     = "consume"
)

// Frame types sent by the relay server.
const (
	FrameAck   = "ack"
	FrameEvent = "event"
)

// Error codes carried in a failed ack.
const (
	CodeRoomNotFound = "room_not_found"
	CodeRoomFull     = "room_full"
	CodeRoomExists   = "room_exists"
	CodeBadRequest   = "bad_request"
	CodeInternal     = "internal"
)

// Request is one client operation. ID correlates the server's ack.
type Request struct {
	ID      string   `json:"id"`
	Op      string   `json:"op"`
	RoomID  string   `json:"room_id"`
	Order   int64    `json:"order,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// Frame is a server to client frame: an ack for a request or a
// subscription event.
type Frame struct {
	Type    string   `json:"type"`
	ID      string   `json:"id,omitempty"`
	OK      bool     `json:"ok,omitempty"`
	Error   string   `json:"error,omitempty"`
	Exists  bool     `json:"exists,omitempty"`
	RoomID  string   `json:"room_id,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrRoomExists):
		return CodeRoomExists
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrUnknownKind):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}

// codeError maps a wire code back to a sentinel.
func codeError(code string) error {
	switch code {
	case CodeRoomNotFound:
		return ErrRoomNotFound
	case CodeRoomFull:
		return ErrRoomFull
	case CodeRoomExists:
		return ErrRoomExists
	case CodeBadRequest:
		return ErrMalformedMessage
	default:
		return fmt.Errorf("relay error %q", code)
	}
}
