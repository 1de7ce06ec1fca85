package game

import "time"

const (
	// RosterSize is the exact number of seats a match needs
	RosterSize = 7

	// MaxRounds is the number of missions in a full match
	MaxRounds = 5

	// WinsNeeded is the number of tallied outcomes that ends a match
	WinsNeeded = 3

	// MaxRejects is the consecutive team rejections before the captain forces a team
	MaxRejects = 5

	// HumanInputTimeout bounds how long a human seat may hold the turn
	HumanInputTimeout = 5 * time.Minute

	// HumanSettleDelay absorbs client navigation races after the ready handshake
	HumanSettleDelay = 500 * time.Millisecond

	// DecisionTimeout bounds a single call to the decision capability
	DecisionTimeout = 60 * time.Second

	// MaxSteps bounds the coordinator loop even under a misbehaving moderator
	MaxSteps = 500

	// TerminationToken ends the match when the moderator says it
	TerminationToken = "TERMINATE"

	// NoResponseText stands in for a human who let the turn time out
	NoResponseText = "(no response: timed out)"

	// FinishedRoomTTL is how long a finished room stays around for late observers
	FinishedRoomTTL = time.Hour

	// SSEBufferSize is the buffer size for SSE message channels
	SSEBufferSize = 32

	// SSEBacklogSize is how many public events a late observer gets replayed
	SSEBacklogSize = 64

	// RoomCodeLength is the length of generated room codes
	RoomCodeLength = 6

	// RoomCodeChars are the characters used for generating room codes (excluding ambiguous chars)
	RoomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)
