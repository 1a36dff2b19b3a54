package handler

import (
	"net/http"
	"time"

	"stocktake-api/internal/service"
	"stocktake-api/pkg/apierror"
	"stocktake-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// PresenceHandler handles advisory presence requests.
type PresenceHandler struct {
	svc *service.StocktakeService
	ttl time.Duration
}

// NewPresenceHandler creates a new presence handler. ttl is how long a
// heartbeat keeps an operator on the roster.
func NewPresenceHandler(svc *service.StocktakeService, ttl time.Duration) *PresenceHandler {
	return &PresenceHandler{svc: svc, ttl: ttl}
}

// Heartbeat handles PUT /api/v1/sessions/{id}/presence/{operator}
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	operator := chi.URLParam(r, "operator")

	if err := h.svc.Heartbeat(r.Context(), sessionID, operator, h.ttl); err != nil {
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}
	response.OK(w, map[string]interface{}{
		"operator": operator,
		"ttl":      h.ttl.String(),
	})
}

// Leave handles DELETE /api/v1/sessions/{id}/presence/{operator}
func (h *PresenceHandler) Leave(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	operator := chi.URLParam(r, "operator")

	if err := h.svc.Leave(r.Context(), sessionID, operator); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// Roster handles GET /api/v1/sessions/{id}/presence
func (h *PresenceHandler) Roster(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	roster, err := h.svc.Roster(r.Context(), sessionID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, roster)
}
