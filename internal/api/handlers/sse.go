package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NomadonaTrip/sophia/internal/api/middleware"
	"github.com/NomadonaTrip/sophia/internal/events"
)

const sseKeepAliveInterval = 15 * time.Second

// Events handles GET /api/events: a long-lived SSE stream of this
// client's approval/publish/recovery/stale events. Subscription is
// capacity-bounded; once the bus is at its subscriber ceiling, new
// connections are rejected with 503 rather than queued.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	clientID := middleware.GetClientID(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, err := h.Bus.Subscribe(clientID)
	if err != nil {
		if errors.Is(err, events.ErrTooManySubscribers) {
			writeError(w, http.StatusServiceUnavailable, "event stream at capacity")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer h.Bus.Unsubscribe(clientID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, "retry: 5000\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
