package handler

import (
	"encoding/json"
	"net/http"

	"stocktake-api/internal/service"
	"stocktake-api/pkg/apierror"
	"stocktake-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// PreferenceHandler serves the server-side mirror of operator
// preferences (last used session, display options).
type PreferenceHandler struct {
	svc *service.StocktakeService
}

// NewPreferenceHandler creates a new preference handler.
func NewPreferenceHandler(svc *service.StocktakeService) *PreferenceHandler {
	return &PreferenceHandler{svc: svc}
}

// Get handles GET /api/v1/operators/{name}/preferences
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	prefs, err := h.svc.Preferences(r.Context(), name)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, prefs)
}

// Put handles PUT /api/v1/operators/{name}/preferences
func (h *PreferenceHandler) Put(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	prefs := map[string]string{}
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	if err := h.svc.SetPreferences(r.Context(), name, prefs); err != nil {
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}
	response.OK(w, prefs)
}
