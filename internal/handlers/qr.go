package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/aaronzipp/avalon-moderator/internal/render"
)

const qrSize = 256

// ObserverURL is the public link to a room's event stream
func (ctx *Context) ObserverURL(room string) string {
	return strings.TrimRight(ctx.Config.PublicURL, "/") + "/matches/" + url.PathEscape(room) + "/events"
}

// HandleQR serves a PNG QR code of the room's observer link
func (ctx *Context) HandleQR(w http.ResponseWriter, r *http.Request) {
	m, ok := ctx.lookup(w, r)
	if !ok {
		return
	}
	png, err := qrcode.Encode(ctx.ObserverURL(m.Engine.Room()), qrcode.Medium, qrSize)
	if err != nil {
		ctx.logger().Error("encode QR code", zap.Error(err))
		render.Error(w, http.StatusInternalServerError, "could not render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(png)
}
