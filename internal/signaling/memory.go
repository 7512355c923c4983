package signaling

import (
	"context"
	"fmt"
	"sync"

	"github.com/BioHazard786/Roomdrop/internal/room"
)

// MemoryRelay is an in-process Relay. Both parties of a room may share one
// instance; it then behaves like the hosted relay both would otherwise dial.
type MemoryRelay struct {
	mu          sync.Mutex
	rooms       map[string]*memoryRoom
	unavailable bool
}

type memoryRoom struct {
	joined    bool
	nextOrder int64
	pending   []Message
	history   []Message
	subs      map[room.Role]*subscription
}

func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{rooms: make(map[string]*memoryRoom)}
}

// SetUnavailable makes every call fail with ErrRelayUnavailable while set.
func (r *MemoryRelay) SetUnavailable(unavailable bool) {
	r.mu.Lock()
	r.unavailable = unavailable
	r.mu.Unlock()
}

// Redeliver pushes every message ever published in the room to the current
// subscribers again, as an at-least-once transport may.
func (r *MemoryRelay) Redeliver(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for _, msg := range rm.history {
		for _, sub := range rm.subs {
			sub.push(msg)
		}
	}
}

// Pending returns the room's unconsumed messages in order.
func (r *MemoryRelay) Pending(roomID string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]Message(nil), rm.pending...)
}

// Published returns every message ever published in the room, in order.
func (r *MemoryRelay) Published(roomID string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]Message(nil), rm.history...)
}

func (r *MemoryRelay) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.unavailable {
		return ErrRelayUnavailable
	}
	return nil
}

func (r *MemoryRelay) Publish(ctx context.Context, roomID string, msg Message) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(ctx); err != nil {
		return Message{}, err
	}
	rm, ok := r.rooms[roomID]
	if !ok {
		return Message{}, fmt.Errorf("publish to %s: %w", roomID, ErrRoomNotFound)
	}

	rm.nextOrder++
	msg.Order = rm.nextOrder
	rm.pending = append(rm.pending, msg)
	rm.history = append(rm.history, msg)

	for _, sub := range rm.subs {
		sub.push(msg)
	}
	return msg, nil
}

func (r *MemoryRelay) Subscribe(ctx context.Context, roomID string, role room.Role, onMessage func(Message)) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(ctx); err != nil {
		return nil, err
	}
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("subscribe to %s: %w", roomID, ErrRoomNotFound)
	}

	if prev := rm.subs[role]; prev != nil {
		prev.cancel()
	}

	sub := newSubscription(roomID, role, onMessage, func(order int64) {
		r.consume(roomID, order)
	})
	rm.subs[role] = sub
	for _, msg := range rm.pending {
		sub.push(msg)
	}

	return func() {
		sub.cancel()
		r.mu.Lock()
		defer r.mu.Unlock()
		if rm, ok := r.rooms[roomID]; ok && rm.subs[role] == sub {
			delete(rm.subs, role)
		}
	}, nil
}

func (r *MemoryRelay) consume(roomID string, order int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for i, msg := range rm.pending {
		if msg.Order == order {
			rm.pending = append(rm.pending[:i], rm.pending[i+1:]...)
			return
		}
	}
}

func (r *MemoryRelay) RoomExists(ctx context.Context, roomID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(ctx); err != nil {
		return false, err
	}
	_, ok := r.rooms[roomID]
	return ok, nil
}

func (r *MemoryRelay) CreateRoomRecord(ctx context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(ctx); err != nil {
		return err
	}
	if _, ok := r.rooms[roomID]; ok {
		return fmt.Errorf("create %s: %w", roomID, ErrRoomExists)
	}
	r.rooms[roomID] = &memoryRoom{subs: make(map[room.Role]*subscription)}
	return nil
}

func (r *MemoryRelay) JoinRoomRecord(ctx context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(ctx); err != nil {
		return err
	}
	rm, ok := r.rooms[roomID]
	if !ok {
		return fmt.Errorf("join %s: %w", roomID, ErrRoomNotFound)
	}
	if rm.joined {
		return fmt.Errorf("join %s: %w", roomID, ErrRoomFull)
	}
	rm.joined = true
	return nil
}

func (r *MemoryRelay) LeaveRoomRecord(ctx context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(ctx); err != nil {
		return err
	}
	if rm, ok := r.rooms[roomID]; ok {
		rm.joined = false
	}
	return nil
}

// CloseRoomRecord removes the room and ends its subscriptions. Closing a
// missing room is not an error.
func (r *MemoryRelay) CloseRoomRecord(ctx context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(ctx); err != nil {
		return err
	}
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	for _, sub := range rm.subs {
		sub.cancel()
	}
	delete(r.rooms, roomID)
	return nil
}
