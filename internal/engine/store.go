package engine

import (
	"fmt"
	"sync"
)

// Sessions is a concurrency-safe set of sessions created from one Engine,
// keyed by session ID with insertion order kept for listing. Servers use it to
// hand sessions to remote callers; it is not a process-wide singleton.
type Sessions struct {
	engine *Engine

	mu    sync.RWMutex
	items map[string]*Session
	order []string
}

// NewSessions returns an empty store that creates sessions with e.
func NewSessions(e *Engine) *Sessions {
	return &Sessions{
		engine: e,
		items:  make(map[string]*Session),
	}
}

// Create starts a new idle session and stores it.
func (s *Sessions) Create(opts ...SessionOption) *Session {
	sess := s.engine.NewSession(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sess.ID()] = sess
	s.order = append(s.order, sess.ID())
	return sess
}

// Get returns the session with the given ID.
func (s *Sessions) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return sess, nil
}

// List returns snapshots of every stored session in creation order.
func (s *Sessions) List() []Snapshot {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.order))
	for _, id := range s.order {
		sessions = append(sessions, s.items[id])
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Snapshot())
	}
	return out
}

// Len returns the number of stored sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Delete closes the session and removes it from the store.
func (s *Sessions) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	sess.Close()
	return nil
}

// CloseAll closes and removes every session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	sessions := s.items
	s.items = make(map[string]*Session)
	s.order = nil
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}
