package models

import (
	"sync"
	"time"
)

// Match represents one running game. Participants are immutable after
// assignment; everything else is mutated by the turn coordinator only.
type Match struct {
	ID           string
	Room         string
	Participants []*Participant // seat order

	Phase     Phase
	Round     int
	Tallies   Tallies
	Captain   string   // handle
	Team      []string // handles
	NextActor string   // handle

	Running     bool
	Outcome     Outcome
	Winner      Team
	Steps       int
	Divergences []string
	StartedAt   time.Time
	EndedAt     time.Time

	mu sync.RWMutex
}

// NewMatch creates a match in its initial state
func NewMatch(id, room string, participants []*Participant) *Match {
	return &Match{
		ID:           id,
		Room:         room,
		Participants: participants,
		Phase:        PhaseTeamSelect,
		Round:        1,
	}
}

// Lock acquires the match's write lock
func (m *Match) Lock() {
	m.mu.Lock()
}

// Unlock releases the match's write lock
func (m *Match) Unlock() {
	m.mu.Unlock()
}

// RLock acquires the match's read lock
func (m *Match) RLock() {
	m.mu.RLock()
}

// RUnlock releases the match's read lock
func (m *Match) RUnlock() {
	m.mu.RUnlock()
}

// ByHandle finds a participant by internal handle
func (m *Match) ByHandle(handle string) (*Participant, bool) {
	for _, p := range m.Participants {
		if p.Handle == handle {
			return p, true
		}
	}
	return nil, false
}

// ByID finds a participant by roster ID
func (m *Match) ByID(id string) (*Participant, bool) {
	for _, p := range m.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// ByDisplayName finds a participant by display name
func (m *Match) ByDisplayName(name string) (*Participant, bool) {
	for _, p := range m.Participants {
		if p.DisplayName == name {
			return p, true
		}
	}
	return nil, false
}

// Resolve finds a participant by display name, handle or roster ID, in that order
func (m *Match) Resolve(who string) (*Participant, bool) {
	if p, ok := m.ByDisplayName(who); ok {
		return p, true
	}
	if p, ok := m.ByHandle(who); ok {
		return p, true
	}
	return m.ByID(who)
}

// Handles returns every participant handle in seat order
func (m *Match) Handles() []string {
	out := make([]string, 0, len(m.Participants))
	for _, p := range m.Participants {
		out = append(out, p.Handle)
	}
	return out
}

// IsRunning reports whether the match loop is still active
func (m *Match) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Running
}

// MatchSummary is the display-safe record of a finished match
type MatchSummary struct {
	MatchID     string
	Room        string
	Outcome     Outcome
	Winner      Team
	Steps       int
	StartedAt   time.Time
	EndedAt     time.Time
	Divergences []string
	Events      []Event
}
