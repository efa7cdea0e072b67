package handlers

import (
	"net/http"

	"github.com/mightyiam/magic-nix-cache/pkg/store"
	"github.com/mightyiam/magic-nix-cache/pkg/workflow"
)

// WorkflowHandler exposes the workflow lifecycle over HTTP.
//
// Endpoints:
//   - POST /api/workflow-start: snapshot the store
//   - POST /api/workflow-finish: diff, fan out, drain all backends
//   - POST /api/enqueue-paths: fan a batch of paths out to all backends
type WorkflowHandler struct {
	controller *workflow.Controller
}

// NewWorkflowHandler creates a workflow handler backed by the given
// controller.
func NewWorkflowHandler(controller *workflow.Controller) *WorkflowHandler {
	return &WorkflowHandler{controller: controller}
}

// StartResponse is the body of a successful workflow-start call.
type StartResponse struct {
	NumOriginalPaths int `json:"num_original_paths"`
}

// FinishResponse is the body of a successful workflow-finish call.
type FinishResponse struct {
	NumOriginalPaths int `json:"num_original_paths"`
	NumFinalPaths    int `json:"num_final_paths"`
	NumNewPaths      int `json:"num_new_paths"`
}

// EnqueueRequest is the body of an enqueue-paths call. Identifiers need
// not be unique or pre-resolved.
type EnqueueRequest struct {
	StorePaths []string `json:"store_paths"`
}

// Start handles POST /api/workflow-start.
//
// Replaces the live snapshot with a fresh store enumeration and returns
// the new snapshot's size.
func (h *WorkflowHandler) Start(w http.ResponseWriter, r *http.Request) {
	n, err := h.controller.Start(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StartResponse{NumOriginalPaths: n})
}

// Finish handles POST /api/workflow-finish.
//
// After a successful response the process is expected to exit shortly;
// the controller has already consumed the shutdown signal.
func (h *WorkflowHandler) Finish(w http.ResponseWriter, r *http.Request) {
	report, err := h.controller.Finish(r.Context())
	if err != nil {
		writeError(w, statusForWorkflowError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, FinishResponse{
		NumOriginalPaths: report.NumOriginalPaths,
		NumFinalPaths:    report.NumFinalPaths,
		NumNewPaths:      report.NumNewPaths,
	})
}

// Enqueue handles POST /api/enqueue-paths.
//
// Resolution failures are the caller's fault (400); backend rejections
// are upstream failures (502).
func (h *WorkflowHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.controller.Enqueue(r.Context(), req.StorePaths); err != nil {
		writeError(w, statusForWorkflowError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// statusForWorkflowError maps controller error kinds to HTTP statuses.
func statusForWorkflowError(err error) int {
	switch {
	case store.IsResolutionError(err):
		return http.StatusBadRequest
	case store.IsEnumerationError(err):
		return http.StatusInternalServerError
	default:
		// Backend acceptance or drain failure.
		return http.StatusBadGateway
	}
}
