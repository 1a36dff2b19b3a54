package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"stocktake-api/internal/repository"
	"stocktake-api/internal/workflow"
	"stocktake-api/pkg/apierror"
	"stocktake-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// WorkflowHandler routes stateless HTTP requests to the per-operator
// workflow controllers.
type WorkflowHandler struct {
	registry *workflow.Registry
}

// NewWorkflowHandler creates a new workflow handler.
func NewWorkflowHandler(registry *workflow.Registry) *WorkflowHandler {
	return &WorkflowHandler{registry: registry}
}

func (h *WorkflowHandler) controller(r *http.Request) *workflow.Controller {
	sessionID := chi.URLParam(r, "id")
	operator := chi.URLParam(r, "operator")
	return h.registry.Get(sessionID, operator)
}

// respond maps controller results onto the response envelope.
func respond(w http.ResponseWriter, st workflow.State, err error) {
	switch {
	case err == nil:
		response.OK(w, st)
	case errors.Is(err, workflow.ErrInvalidStep), errors.Is(err, workflow.ErrNoPendingItem):
		response.Error(w, apierror.Conflict(err.Error()))
	case errors.Is(err, workflow.ErrInvalidInput):
		response.Error(w, apierror.BadRequest(err.Error()))
	case errors.Is(err, repository.ErrNotFound):
		response.Error(w, apierror.NotFound(err.Error()))
	default:
		response.Error(w, err)
	}
}

type tokenRequest struct {
	Token string `json:"token"`
}

type valueRequest struct {
	Value string `json:"value"`
}

type quantityRequest struct {
	Value int `json:"value"`
}

type adjustRequest struct {
	Delta int `json:"delta"`
}

type confirmRequest struct {
	Choice string `json:"choice"` // "continue" or "go_back"
}

func decode(r *http.Request, into interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return apierror.BadRequest("invalid JSON body")
	}
	return nil
}

// State handles GET /api/v1/sessions/{id}/workflow/{operator}
func (h *WorkflowHandler) State(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.controller(r).State())
}

// Scan handles POST .../workflow/{operator}/scan
func (h *WorkflowHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	st, err := h.controller(r).Scan(r.Context(), req.Token)
	respond(w, st, err)
}

// ConfirmItem handles POST .../workflow/{operator}/confirm-item, the
// answer to the double-count prompt.
func (h *WorkflowHandler) ConfirmItem(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}

	c := h.controller(r)
	switch req.Choice {
	case "continue":
		st, err := c.ConfirmContinue()
		respond(w, st, err)
	case "go_back":
		st, err := c.ConfirmGoBack()
		respond(w, st, err)
	default:
		response.Error(w, apierror.BadRequest("choice must be continue or go_back"))
	}
}

// Continue handles POST .../workflow/{operator}/continue
func (h *WorkflowHandler) Continue(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller(r).Continue()
	respond(w, st, err)
}

// Skip handles POST .../workflow/{operator}/skip
func (h *WorkflowHandler) Skip(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller(r).SkipItem()
	respond(w, st, err)
}

// ProductBarcode handles POST .../workflow/{operator}/product-barcode
func (h *WorkflowHandler) ProductBarcode(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	st, err := h.controller(r).SetProductBarcode(req.Value)
	respond(w, st, err)
}

// NoBarcode handles POST .../workflow/{operator}/no-barcode
func (h *WorkflowHandler) NoBarcode(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller(r).NoBarcode()
	respond(w, st, err)
}

// CountScan handles POST .../workflow/{operator}/count-scan
func (h *WorkflowHandler) CountScan(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	st, err := h.controller(r).CountScan(req.Token)
	respond(w, st, err)
}

// Quantity handles POST .../workflow/{operator}/quantity
func (h *WorkflowHandler) Quantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	st, err := h.controller(r).SetQuantity(req.Value)
	respond(w, st, err)
}

// Adjust handles POST .../workflow/{operator}/adjust
func (h *WorkflowHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	st, err := h.controller(r).Adjust(req.Delta)
	respond(w, st, err)
}

// Back handles POST .../workflow/{operator}/back
func (h *WorkflowHandler) Back(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller(r).Back()
	respond(w, st, err)
}

// Save handles POST .../workflow/{operator}/save
func (h *WorkflowHandler) Save(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller(r).Save(r.Context())
	respond(w, st, err)
}
