package handler

import (
	"errors"
	"net/http"

	"stocktake-api/internal/repository"
	"stocktake-api/internal/service"
	"stocktake-api/pkg/apierror"
	"stocktake-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// ItemHandler handles item lookup and listing requests.
type ItemHandler struct {
	svc *service.StocktakeService
}

// NewItemHandler creates a new item handler.
func NewItemHandler(svc *service.StocktakeService) *ItemHandler {
	return &ItemHandler{svc: svc}
}

// Lookup handles GET /api/v1/sessions/{id}/items/{barcode}. The token
// resolves by item identity first, then by SKU.
func (h *ItemHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	token := chi.URLParam(r, "barcode")

	item, err := h.svc.FindItem(r.Context(), sessionID, token)
	if errors.Is(err, repository.ErrNotFound) {
		response.Error(w, apierror.NotFound("item not found"))
		return
	}
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, item)
}

// List handles GET /api/v1/sessions/{id}/items. With ?modified=true it
// returns only counted items.
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var err error
	var items interface{}
	if r.URL.Query().Get("modified") == "true" {
		items, err = h.svc.ModifiedItems(r.Context(), sessionID)
	} else {
		items, err = h.svc.Items(r.Context(), sessionID)
	}
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, items)
}

// UnknownBarcodes handles GET /api/v1/sessions/{id}/unknown-barcodes
func (h *ItemHandler) UnknownBarcodes(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	recs, err := h.svc.UnknownBarcodes(r.Context(), sessionID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, recs)
}
