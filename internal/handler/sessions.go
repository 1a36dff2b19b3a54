package handler

import (
	"errors"
	"fmt"
	"net/http"

	"stocktake-api/internal/repository"
	"stocktake-api/internal/service"
	"stocktake-api/internal/workflow"
	"stocktake-api/pkg/apierror"
	"stocktake-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// maxImportSize caps the multipart upload at 32 MB, plenty for any
// realistic stocktake CSV.
const maxImportSize = 32 << 20

// SessionHandler handles session lifecycle requests.
type SessionHandler struct {
	svc      *service.StocktakeService
	registry *workflow.Registry
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.StocktakeService, registry *workflow.Registry) *SessionHandler {
	return &SessionHandler{svc: svc, registry: registry}
}

// Import handles POST /api/v1/sessions/import
func (h *SessionHandler) Import(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		response.Error(w, apierror.BadRequest("invalid multipart form"))
		return
	}

	operator := r.FormValue("operator")
	if operator == "" {
		response.Error(w, apierror.BadRequest("operator is required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, apierror.BadRequest("file is required"))
		return
	}
	defer file.Close()

	result, err := h.svc.Import(r.Context(), file, header.Filename, operator)
	if err != nil {
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}

	response.Created(w, result.Session)
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.Sessions(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, sessions)
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.svc.Session(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		response.Error(w, apierror.NotFound("session not found"))
		return
	}
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, session)
}

// Delete handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.svc.DeleteSession(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		response.Error(w, apierror.NotFound("session not found"))
		return
	}
	if err != nil {
		response.Error(w, err)
		return
	}

	h.registry.DropSession(id)
	response.NoContent(w)
}

// Export handles GET /api/v1/sessions/{id}/export
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.exportCSV(w, r, fmt.Sprintf("stocktake-%s.csv", id), func() error {
		return h.svc.ExportCSV(r.Context(), id, w)
	})
}

// ExportUnknown handles GET /api/v1/sessions/{id}/export/unknown
func (h *SessionHandler) ExportUnknown(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.exportCSV(w, r, fmt.Sprintf("unknown-barcodes-%s.csv", id), func() error {
		return h.svc.ExportUnknownCSV(r.Context(), id, w)
	})
}

func (h *SessionHandler) exportCSV(w http.ResponseWriter, r *http.Request, fileName string, write func() error) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))

	if err := write(); err != nil {
		// Headers may already be sent; reset them only if nothing was
		// written yet.
		if errors.Is(err, repository.ErrNotFound) {
			w.Header().Del("Content-Disposition")
			w.Header().Set("Content-Type", "application/json")
			response.Error(w, apierror.NotFound("session not found"))
			return
		}
		response.Error(w, err)
	}
}
