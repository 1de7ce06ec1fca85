package store

import (
	"errors"
	"sync"
	"time"

	"github.com/aaronzipp/avalon-moderator/internal/coordinator"
	"github.com/aaronzipp/avalon-moderator/internal/sse"
)

var (
	// ErrRoomNotFound is returned for an unknown room code
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned when a room code is already taken
	ErrRoomExists = errors.New("room already exists")
)

// Match is one running room: its engine and the hub observers listen on
type Match struct {
	Engine    *coordinator.Engine
	Hub       *sse.Hub
	CreatedAt time.Time
}

// MatchStore is the process-scoped registry of rooms
type MatchStore struct {
	matches map[string]*Match
	mu      sync.RWMutex
}

// NewMatchStore creates a new match store
func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches: make(map[string]*Match),
	}
}

// Get retrieves a match by room code
func (s *MatchStore) Get(code string) (*Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, exists := s.matches[code]
	return m, exists
}

// Add stores a match under a free room code
func (s *MatchStore) Add(code string, m *Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[code]; exists {
		return ErrRoomExists
	}
	s.matches[code] = m
	return nil
}

// Stop stops the match in a room but keeps it for late observers
func (s *MatchStore) Stop(code string) error {
	m, ok := s.Get(code)
	if !ok {
		return ErrRoomNotFound
	}
	m.Engine.Stop()
	return nil
}

// Delete stops and removes a room
func (s *MatchStore) Delete(code string) {
	s.mu.Lock()
	m, exists := s.matches[code]
	delete(s.matches, code)
	s.mu.Unlock()
	if exists {
		m.Engine.Stop()
		m.Hub.Close()
	}
}

// Exists checks if a room code is taken
func (s *MatchStore) Exists(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.matches[code]
	return exists
}

// Len returns the number of rooms
func (s *MatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}

// PruneFinished removes rooms whose match ended more than ttl ago
func (s *MatchStore) PruneFinished(ttl time.Duration) int {
	s.mu.RLock()
	var stale []string
	for code, m := range s.matches {
		if m.Engine.IsRunning() {
			continue
		}
		snap := m.Engine.Snapshot()
		if snap.Outcome != "" && time.Since(m.CreatedAt) > ttl {
			stale = append(stale, code)
		}
	}
	s.mu.RUnlock()
	for _, code := range stale {
		s.Delete(code)
	}
	return len(stale)
}

// StopAll stops every match, for process shutdown
func (s *MatchStore) StopAll() {
	s.mu.RLock()
	matches := make([]*Match, 0, len(s.matches))
	for _, m := range s.matches {
		matches = append(matches, m)
	}
	s.mu.RUnlock()
	for _, m := range matches {
		m.Engine.Stop()
		m.Hub.Close()
	}
}
