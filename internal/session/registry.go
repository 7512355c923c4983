package session

import (
	"fmt"
	"sync"
)

// Registry indexes live sessions by room id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers s under its room id. The entry is removed once s is done.
func (r *Registry) Add(s *Session) error {
	rm := s.Room()
	if rm == nil {
		return fmt.Errorf("session has no room yet")
	}

	r.mu.Lock()
	if _, ok := r.sessions[rm.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("room %s already registered", rm.ID)
	}
	r.sessions[rm.ID] = s
	r.mu.Unlock()

	go func() {
		<-s.Done()
		r.remove(rm.ID, s)
	}()
	return nil
}

// Get returns the session for roomID.
func (r *Registry) Get(roomID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[roomID]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// LeaveAll leaves every registered session.
func (r *Registry) LeaveAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.Leave()
	}
}

func (r *Registry) remove(roomID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[roomID] == s {
		delete(r.sessions, roomID)
	}
}
