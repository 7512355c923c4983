package signaling

import (
	"log/slog"
	"sync"

	"github.com/BioHazard786/Roomdrop/internal/room"
)

// subscription delivers relay messages to one handler on its own goroutine.
// It drops self echoes and duplicate order keys, and consumes every other
// message after the handler returns.
type subscription struct {
	roomID    string
	role      room.Role
	onMessage func(Message)
	consume   func(order int64)

	mu      sync.Mutex
	pending []Message
	seen    map[int64]struct{}
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newSubscription(roomID string, role room.Role, onMessage func(Message), consume func(int64)) *subscription {
	s := &subscription{
		roomID:    roomID,
		role:      role,
		onMessage: onMessage,
		consume:   consume,
		seen:      make(map[int64]struct{}),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscription) push(msg Message) {
	s.mu.Lock()
	s.pending = append(s.pending, msg)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) cancel() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.wake:
		case <-s.done:
			return
		}

		for {
			if s.cancelled() {
				return
			}
			msg, ok := s.next()
			if !ok {
				break
			}
			s.deliver(msg)
		}
	}
}

func (s *subscription) next() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return Message{}, false
	}
	msg := s.pending[0]
	s.pending = s.pending[1:]
	return msg, true
}

// admit reports whether msg should reach the handler.
func (s *subscription) admit(msg Message) bool {
	if msg.Sender == s.role {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[msg.Order]; dup {
		return false
	}
	s.seen[msg.Order] = struct{}{}
	return true
}

func (s *subscription) deliver(msg Message) {
	if !s.admit(msg) {
		return
	}

	if err := msg.Validate(); err != nil {
		slog.Warn("dropping invalid control message", "room", s.roomID, "order", msg.Order, "error", err)
	} else {
		s.onMessage(msg)
	}

	if s.consume != nil {
		s.consume(msg.Order)
	}
}
