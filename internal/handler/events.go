package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Event names sent on /api/events. Events carry no state; clients re-query.
const (
	EventCart      = "cart"
	EventFavorites = "favorites"
)

// events streams change notifications as server-sent events until the client
// disconnects or the handler is closed.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	cartCh, unsubCart := h.cart.Subscribe()
	defer unsubCart()
	favCh, unsubFav := h.favorites.Subscribe()
	defer unsubFav()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	lg := zctx.From(r.Context())
	send := func(format string, args ...any) bool {
		if _, err := fmt.Fprintf(w, format, args...); err != nil {
			return false
		}
		if err := rc.Flush(); err != nil {
			lg.Debug("Event stream flush failed", zap.Error(err))
			return false
		}
		return true
	}
	if !send(": connected\n\n") {
		return
	}

	heartbeat := time.NewTicker(h.cfg.EventsHeartbeat)
	defer heartbeat.Stop()

	for {
		var ok bool
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case _, open := <-cartCh:
			if !open {
				return
			}
			ok = send("event: %s\ndata: {}\n\n", EventCart)
		case _, open := <-favCh:
			if !open {
				return
			}
			ok = send("event: %s\ndata: {}\n\n", EventFavorites)
		case <-heartbeat.C:
			ok = send(": ping\n\n")
		}
		if !ok {
			return
		}
	}
}
