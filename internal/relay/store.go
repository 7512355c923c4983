// Package relay is the signaling relay server. It keeps one ordered stream of
// control messages per room and pushes them to every websocket subscribed to
// the room.
package relay

import (
	"fmt"
	"sync"

	"github.com/BioHazard786/Roomdrop/internal/signaling"
)

// Store holds rooms and their unconsumed control messages. Errors use the
// signaling sentinels (ErrRoomNotFound, ErrRoomFull, ErrRoomExists).
type Store interface {
	CreateRoom(roomID string) error
	RoomExists(roomID string) (bool, error)
	JoinRoom(roomID string) error
	LeaveRoom(roomID string) error
	CloseRoom(roomID string) error

	// Append assigns the next order key of the room to msg and stores it.
	Append(roomID string, msg signaling.Message) (signaling.Message, error)

	// Pending returns unconsumed messages in order.
	Pending(roomID string) ([]signaling.Message, error)

	Consume(roomID string, order int64) error
	Close() error
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*storedRoom
}

type storedRoom struct {
	joined    bool
	nextOrder int64
	messages  []signaling.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*storedRoom)}
}

func (s *MemoryStore) CreateRoom(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; ok {
		return fmt.Errorf("create room %s: %w", roomID, signaling.ErrRoomExists)
	}
	s.rooms[roomID] = &storedRoom{}
	return nil
}

func (s *MemoryStore) RoomExists(roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.rooms[roomID]
	return ok, nil
}

func (s *MemoryStore) JoinRoom(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("join room %s: %w", roomID, signaling.ErrRoomNotFound)
	}
	if r.joined {
		return fmt.Errorf("join room %s: %w", roomID, signaling.ErrRoomFull)
	}
	r.joined = true
	return nil
}

func (s *MemoryStore) LeaveRoom(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rooms[roomID]; ok {
		r.joined = false
	}
	return nil
}

func (s *MemoryStore) CloseRoom(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, roomID)
	return nil
}

func (s *MemoryStore) Append(roomID string, msg signaling.Message) (signaling.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return signaling.Message{}, fmt.Errorf("append to %s: %w", roomID, signaling.ErrRoomNotFound)
	}
	r.nextOrder++
	msg.Order = r.nextOrder
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (s *MemoryStore) Pending(roomID string) ([]signaling.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("pending for %s: %w", roomID, signaling.ErrRoomNotFound)
	}
	return append([]signaling.Message(nil), r.messages...), nil
}

func (s *MemoryStore) Consume(roomID string, order int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("consume in %s: %w", roomID, signaling.ErrRoomNotFound)
	}
	for i, msg := range r.messages {
		if msg.Order == order {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
