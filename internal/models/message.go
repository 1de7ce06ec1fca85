package models

import "time"

const (
	// ModeratorHandle is the transcript source of the moderator
	ModeratorHandle = "host"
	// ModeratorDisplayName is how observers see the moderator
	ModeratorDisplayName = "Host"
	// SystemHandle authors the opening task message
	SystemHandle = "system"
)

// Message is one transcript entry. Source is always an internal handle.
type Message struct {
	Source  string    `json:"source"`
	Content string    `json:"content"`
	Phase   Phase     `json:"phase"` // phase in force when the message was appended
	At      time.Time `json:"at"`
}

// FromModerator reports whether the moderator authored the message
func (m Message) FromModerator() bool {
	return m.Source == ModeratorHandle
}
