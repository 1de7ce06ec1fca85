package sse

// Stream-level event names, next to the match event types
const (
	EventConnected = "connected"
	EventClosed    = "closed"
)
