package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/planora/hub/internal/middleware"
	"github.com/planora/hub/internal/service"
)

// EventsHandler streams entity change events to clients over SSE.
type EventsHandler struct {
	feed *service.EventFeed
}

func NewEventsHandler(feed *service.EventFeed) *EventsHandler {
	return &EventsHandler{feed: feed}
}

// GET /v1/events?since_seq=N
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil || user.CurrentTeamID == 0 {
		writeError(w, http.StatusForbidden, "E_FORBIDDEN", "an active team is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "E_INTERNAL", "streaming unsupported")
		return
	}

	sinceSeq := 0
	if v := r.URL.Query().Get("since_seq"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			sinceSeq = n
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := h.feed.Subscribe(user.CurrentTeamID, sinceSeq)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: change\ndata: %s\n\n", ev.Seq, payload)
			flusher.Flush()
		}
	}
}
