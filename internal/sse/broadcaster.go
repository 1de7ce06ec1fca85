package sse

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/aaronzipp/avalon-moderator/internal/game"
	"github.com/aaronzipp/avalon-moderator/internal/models"
	"github.com/aaronzipp/avalon-moderator/internal/render"
)

const privateBacklogSize = 8

// Hub fans a match's events out to its SSE clients. Events addressed to a
// single participant only reach that participant's connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan models.SSEMessage]string // client -> player ID, "" for observers
	backlog []models.Event
	private map[string][]models.Event
	closed  chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[chan models.SSEMessage]string),
		private: make(map[string][]models.Event),
		closed:  make(chan struct{}),
		logger:  logger,
	}
}

// AddClient registers a client and returns the events it missed: the
// public backlog plus anything addressed to playerID, oldest first.
func (h *Hub) AddClient(client chan models.SSEMessage, playerID string) []models.SSEMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	if playerID != "" {
		dup := 0
		for _, pid := range h.clients {
			if pid == playerID {
				dup++
			}
		}
		if dup > 0 {
			h.logger.Warn("player opened additional SSE connections", zap.String("player", playerID), zap.Int("existing", dup))
		}
	}
	h.clients[client] = playerID

	missed := make([]models.Event, 0, len(h.backlog)+len(h.private[playerID]))
	missed = append(missed, h.backlog...)
	if playerID != "" {
		missed = append(missed, h.private[playerID]...)
	}
	sort.SliceStable(missed, func(i, j int) bool { return missed[i].At.Before(missed[j].At) })

	out := make([]models.SSEMessage, 0, len(missed))
	for _, evt := range missed {
		msg, err := render.Event(evt)
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// RemoveClient unregisters a client
func (h *Hub) RemoveClient(client chan models.SSEMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
	h.logger.Debug("SSE client removed", zap.Int("clients", len(h.clients)))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish records evt and delivers it without blocking. A client whose
// buffer is full misses the event; the match loop never waits on observers.
func (h *Hub) Publish(evt models.Event) {
	msg, err := render.Event(evt)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", string(evt.Type)), zap.Error(err))
		return
	}

	h.mu.Lock()
	if evt.IsPublic() {
		h.backlog = appendBounded(h.backlog, evt, game.SSEBacklogSize)
	} else {
		h.private[evt.Recipient] = appendBounded(h.private[evt.Recipient], evt, privateBacklogSize)
	}
	targets := make([]chan models.SSEMessage, 0, len(h.clients))
	for client, pid := range h.clients {
		if evt.IsPublic() || pid == evt.Recipient {
			targets = append(targets, client)
		}
	}
	h.mu.Unlock()

	// send without holding the lock
	sent := 0
	for _, client := range targets {
		select {
		case client <- msg:
			sent++
		default:
			h.logger.Warn("SSE client buffer full, event dropped", zap.String("event", msg.Event))
		}
	}
	h.logger.Debug("broadcast", zap.String("event", msg.Event), zap.Int("sent", sent), zap.Int("targets", len(targets)))
}

// Close tells every client the stream is over. Channels are never closed
// by the hub; handlers watch Done instead.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.closed) })
}

// Done is closed once the hub is closed
func (h *Hub) Done() <-chan struct{} {
	return h.closed
}

func appendBounded(events []models.Event, evt models.Event, limit int) []models.Event {
	events = append(events, evt)
	if len(events) > limit {
		events = append(events[:0:0], events[len(events)-limit:]...)
	}
	return events
}
