package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aaronzipp/avalon-moderator/internal/render"
)

const (
	inputReadTimeout  = 120 * time.Second
	inputWriteTimeout = 10 * time.Second
	inputMaxFrame     = 16 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client frame types on the input socket
const (
	FrameReady       = "ready"
	FramePlayerInput = "player_input"
	FramePing        = "ping"

	FrameInputReceived = "input_received"
	FramePong          = "pong"
	FrameError         = "error"
)

// InputFrame is a frame sent by a human seat's client
type InputFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// InputReply is a frame sent back to the client
type InputReply struct {
	Type    string `json:"type"`
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandleInput upgrades to a WebSocket over which one human seat
// acknowledges its turn and submits utterances
func (ctx *Context) HandleInput(w http.ResponseWriter, r *http.Request) {
	m, ok := ctx.lookup(w, r)
	if !ok {
		return
	}
	playerID := strings.TrimSpace(r.URL.Query().Get("player"))
	if _, known := m.Engine.RoleInfo(playerID); !known {
		render.Error(w, http.StatusNotFound, "unknown player")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		ctx.logger().Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := ctx.logger().With(zap.String("room", m.Engine.Room()), zap.String("player", playerID))
	conn.SetReadLimit(inputMaxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(inputReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(inputReadTimeout))
	})

	for {
		var frame InputFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("input socket closed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(inputReadTimeout))

		var reply InputReply
		switch frame.Type {
		case FrameReady:
			ok := m.Engine.ProvideInputByID(playerID, "")
			reply = InputReply{Type: FrameInputReceived, Success: &ok}
		case FramePlayerInput:
			ok := false
			if strings.TrimSpace(frame.Content) != "" {
				ok = m.Engine.ProvideInputByID(playerID, frame.Content)
			}
			reply = InputReply{Type: FrameInputReceived, Success: &ok}
		case FramePing:
			reply = InputReply{Type: FramePong}
		default:
			reply = InputReply{Type: FrameError, Message: "unknown frame type"}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(inputWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Debug("input socket write failed", zap.Error(err))
			return
		}
	}
}
