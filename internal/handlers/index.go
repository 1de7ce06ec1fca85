package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/aaronzipp/avalon-moderator/internal/config"
	"github.com/aaronzipp/avalon-moderator/internal/decision"
	"github.com/aaronzipp/avalon-moderator/internal/game"
	"github.com/aaronzipp/avalon-moderator/internal/render"
	"github.com/aaronzipp/avalon-moderator/internal/store"
)

// Context holds shared application dependencies
type Context struct {
	Store   *store.MatchStore
	Archive *store.Archive // optional
	Config  config.Config
	Logger  *zap.Logger
	Decider decision.Decider
	Catalog *game.Catalog
}

// Routes registers every endpoint on a new mux
func (ctx *Context) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", ctx.HandleHealth)
	mux.HandleFunc("POST /matches", ctx.HandleCreateMatch)
	mux.HandleFunc("GET /matches/{room}", ctx.HandleSnapshot)
	mux.HandleFunc("POST /matches/{room}/stop", ctx.HandleStopMatch)
	mux.HandleFunc("GET /matches/{room}/role", ctx.HandleRole)
	mux.HandleFunc("GET /matches/{room}/events", ctx.HandleSSE)
	mux.HandleFunc("GET /matches/{room}/input", ctx.HandleInput)
	mux.HandleFunc("GET /matches/{room}/qr", ctx.HandleQR)
	mux.HandleFunc("GET /archive/{room}", ctx.HandleArchive)
	return mux
}

// HandleHealth reports liveness and the number of rooms
func (ctx *Context) HandleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  ctx.Store.Len(),
	})
}

func (ctx *Context) logger() *zap.Logger {
	if ctx.Logger == nil {
		return zap.NewNop()
	}
	return ctx.Logger
}

// lookup resolves the room path value or writes a 404
func (ctx *Context) lookup(w http.ResponseWriter, r *http.Request) (*store.Match, bool) {
	room := r.PathValue("room")
	m, ok := ctx.Store.Get(room)
	if !ok {
		render.Error(w, http.StatusNotFound, store.ErrRoomNotFound.Error())
		return nil, false
	}
	return m, true
}
