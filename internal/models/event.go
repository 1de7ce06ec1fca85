package models

import "time"

// EventType names a broadcast event delivered to observers
type EventType string

const (
	EventMatchStarted    EventType = "match_started"
	EventRoleAssigned    EventType = "role_assigned"
	EventWaitingForInput EventType = "waiting_for_input"
	EventMessage         EventType = "message"
	EventStateUpdate     EventType = "state_update"
	EventMatchEnded      EventType = "match_ended"
	EventError           EventType = "error"
)

// Event is a display-safe broadcast. Recipient, when set, restricts delivery
// to a single participant (by roster ID).
type Event struct {
	Type      EventType `json:"type"`
	MatchID   string    `json:"match_id"`
	Recipient string    `json:"-"`
	Payload   any       `json:"payload"`
	At        time.Time `json:"at"`
}

// IsPublic reports whether every observer may receive the event
func (e Event) IsPublic() bool {
	return e.Recipient == ""
}

// PublicSeat is the roster entry every observer may see
type PublicSeat struct {
	Name string `json:"name"`
	Seat int    `json:"seat"`
	Kind Kind   `json:"kind"`
}

type MatchStartedPayload struct {
	Players []PublicSeat `json:"players"`
}

type WaitingForInputPayload struct {
	Player string `json:"player"`
	Prompt string `json:"prompt"`
}

type MessagePayload struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Tallies are the running mission/vote counters declared by the moderator
type Tallies struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Rejects   int `json:"rejects"`
}

type StateUpdatePayload struct {
	Phase     Phase    `json:"phase"`
	Round     int      `json:"round"`
	Captain   string   `json:"captain,omitempty"`
	Team      []string `json:"team,omitempty"`
	Tallies   Tallies  `json:"tallies"`
	NextActor string   `json:"next_actor,omitempty"`
}

type MatchEndedPayload struct {
	WinningSide Team            `json:"winning_side"`
	Outcome     Outcome         `json:"outcome"`
	Roles       map[string]Role `json:"roles,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// SSEMessage represents a message sent via Server-Sent Events
type SSEMessage struct {
	Event string // Event type (e.g., "message", "state_update")
	Data  string // JSON payload
}
