package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aaronzipp/avalon-moderator/internal/coordinator"
	"github.com/aaronzipp/avalon-moderator/internal/game"
	"github.com/aaronzipp/avalon-moderator/internal/models"
	"github.com/aaronzipp/avalon-moderator/internal/projector"
	"github.com/aaronzipp/avalon-moderator/internal/render"
	"github.com/aaronzipp/avalon-moderator/internal/sse"
	"github.com/aaronzipp/avalon-moderator/internal/store"
)

const maxRoomAttempts = 5

type createMatchRequest struct {
	Players []models.Shell `json:"players"`
}

type createMatchResponse struct {
	Room    string `json:"room"`
	MatchID string `json:"match_id"`
}

// HandleCreateMatch assigns roles for a seven-seat roster and starts the match
func (ctx *Context) HandleCreateMatch(w http.ResponseWriter, r *http.Request) {
	if ctx.Decider == nil {
		render.Error(w, http.StatusServiceUnavailable, "no decision backend configured")
		return
	}
	var req createMatchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		render.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	logger := ctx.logger()
	for attempt := 0; attempt < maxRoomAttempts; attempt++ {
		room := game.GetUniqueRoomCode(ctx.Store)
		hub := sse.NewHub(logger.With(zap.String("room", room)))

		engine, err := coordinator.New(ctx.engineConfig(room, req.Players, hub))
		if err != nil {
			if isRosterError(err) {
				render.Error(w, http.StatusBadRequest, err.Error())
				return
			}
			logger.Error("create match", zap.Error(err))
			render.Error(w, http.StatusInternalServerError, "could not create match")
			return
		}

		err = ctx.Store.Add(room, &store.Match{Engine: engine, Hub: hub, CreatedAt: time.Now()})
		if errors.Is(err, store.ErrRoomExists) {
			continue
		}
		if err != nil {
			render.Error(w, http.StatusInternalServerError, err.Error())
			return
		}

		// the match outlives the request
		if err := engine.Start(context.Background()); err != nil {
			ctx.Store.Delete(room)
			render.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		go closeHubWhenDone(engine, hub)

		logger.Info("created match", zap.String("room", room), zap.String("match_id", engine.ID()))
		render.JSON(w, http.StatusCreated, createMatchResponse{Room: room, MatchID: engine.ID()})
		return
	}
	render.Error(w, http.StatusServiceUnavailable, "no free room code")
}

func (ctx *Context) engineConfig(room string, roster []models.Shell, hub *sse.Hub) coordinator.Config {
	cfg := coordinator.Config{
		Room:            room,
		Roster:          roster,
		Decider:         ctx.Decider,
		Catalog:         ctx.Catalog,
		Sink:            hub,
		Logger:          ctx.logger(),
		MaxSteps:        ctx.Config.MaxSteps,
		HumanTimeout:    ctx.Config.HumanInputTimeout,
		SettleDelay:     ctx.Config.HumanSettleDelay,
		DecisionTimeout: ctx.Config.DecisionTimeout,
		DecisionRetries: ctx.Config.DecisionRetries,
		Pacing:          ctx.Config.Pacing,
	}
	if ctx.Archive != nil {
		cfg.Recorder = ctx.Archive
	}
	return cfg
}

// closeHubWhenDone keeps the final events on the stream, then ends it
func closeHubWhenDone(engine *coordinator.Engine, hub *sse.Hub) {
	<-engine.Done()
	hub.Publish(models.Event{Type: sse.EventClosed, MatchID: engine.ID(), At: time.Now()})
	hub.Close()
}

func isRosterError(err error) bool {
	return errors.Is(err, game.ErrInvalidRosterSize) ||
		errors.Is(err, game.ErrInvalidSeat) ||
		errors.Is(err, game.ErrDuplicateParticipant) ||
		errors.Is(err, game.ErrInvalidKind) ||
		errors.Is(err, game.ErrAmbiguousID) ||
		errors.Is(err, projector.ErrIdentifierCollision)
}

// HandleStopMatch stops a running match. Stopping twice is fine.
func (ctx *Context) HandleStopMatch(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if err := ctx.Store.Stop(room); err != nil {
		render.Error(w, http.StatusNotFound, err.Error())
		return
	}
	ctx.logger().Info("stopped match", zap.String("room", room))
	w.WriteHeader(http.StatusNoContent)
}

// HandleSnapshot returns the display-safe state of a match
func (ctx *Context) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	m, ok := ctx.lookup(w, r)
	if !ok {
		return
	}
	render.JSON(w, http.StatusOK, m.Engine.Snapshot())
}

// HandleRole returns one participant's own role view
func (ctx *Context) HandleRole(w http.ResponseWriter, r *http.Request) {
	m, ok := ctx.lookup(w, r)
	if !ok {
		return
	}
	player := strings.TrimSpace(r.URL.Query().Get("player"))
	if player == "" {
		render.Error(w, http.StatusBadRequest, "player is required")
		return
	}
	view, ok := m.Engine.RoleInfo(player)
	if !ok {
		render.Error(w, http.StatusNotFound, "unknown player")
		return
	}
	render.JSON(w, http.StatusOK, view)
}

// HandleArchive lists the finished matches recorded for a room
func (ctx *Context) HandleArchive(w http.ResponseWriter, r *http.Request) {
	if ctx.Archive == nil {
		render.Error(w, http.StatusNotFound, "archive disabled")
		return
	}
	matches, err := ctx.Archive.ListByRoom(r.Context(), r.PathValue("room"))
	if err != nil {
		ctx.logger().Error("list archive", zap.Error(err))
		render.Error(w, http.StatusInternalServerError, "could not read archive")
		return
	}
	if matches == nil {
		matches = []store.ArchivedMatch{}
	}
	render.JSON(w, http.StatusOK, matches)
}
