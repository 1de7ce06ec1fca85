package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/aaronzipp/avalon-moderator/internal/game"
	"github.com/aaronzipp/avalon-moderator/internal/models"
	"github.com/aaronzipp/avalon-moderator/internal/render"
	"github.com/aaronzipp/avalon-moderator/internal/sse"
)

// HandleSSE streams a match's events. Without a player the client is a
// plain observer and never sees recipient-scoped events.
func (ctx *Context) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m, ok := ctx.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		render.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	playerID := strings.TrimSpace(r.URL.Query().Get("player"))
	if playerID != "" {
		if _, known := m.Engine.RoleInfo(playerID); !known {
			render.Error(w, http.StatusNotFound, "unknown player")
			return
		}
	}
	logger := ctx.logger().With(zap.String("room", m.Engine.Room()), zap.String("player", playerID))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering in nginx/proxies
	w.WriteHeader(http.StatusOK)

	clientChan := make(chan models.SSEMessage, game.SSEBufferSize)
	missed := m.Hub.AddClient(clientChan, playerID)
	defer m.Hub.RemoveClient(clientChan)
	logger.Debug("SSE client connected", zap.Int("clients", m.Hub.ClientCount()), zap.Int("replayed", len(missed)))

	fmt.Fprint(w, render.Frame(models.SSEMessage{Event: sse.EventConnected, Data: m.Engine.ID()}))
	for _, msg := range missed {
		fmt.Fprint(w, render.Frame(msg))
	}
	flusher.Flush()

	reqCtx := r.Context()
	for {
		select {
		case <-reqCtx.Done():
			logger.Debug("SSE client disconnected")
			return
		case msg := <-clientChan:
			fmt.Fprint(w, render.Frame(msg))
			flusher.Flush()
		case <-m.Hub.Done():
			// drain what was queued before the close
			for {
				select {
				case msg := <-clientChan:
					fmt.Fprint(w, render.Frame(msg))
				default:
					flusher.Flush()
					return
				}
			}
		}
	}
}
