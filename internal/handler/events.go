package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"stocktake-api/internal/service"
	"stocktake-api/internal/stream"
	"stocktake-api/pkg/apierror"
	"stocktake-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// EventHandler streams session events to clients as server-sent events.
type EventHandler struct {
	svc *service.StocktakeService
}

// NewEventHandler creates a new event handler.
func NewEventHandler(svc *service.StocktakeService) *EventHandler {
	return &EventHandler{svc: svc}
}

// Stream handles GET /api/v1/sessions/{id}/events. The subscription is
// canceled when the client disconnects.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, apierror.InternalError("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Buffered so a slow client drops events instead of blocking the
	// publisher.
	events := make(chan stream.Event, 64)
	sub, err := h.svc.Subscribe(sessionID, func(ev stream.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	if err != nil {
		return
	}
	defer sub.Cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
