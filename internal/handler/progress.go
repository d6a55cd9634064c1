package handler

import (
	"net/http"

	"github.com/matthewbaird/onboarding/internal/worker"
)

// ProgressHandler serves the cross-session progress projection.
type ProgressHandler struct {
	progress *worker.ProgressWorker
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(progress *worker.ProgressWorker) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// HandleListProgress returns every entity some session has made progress on.
// GET /api/onboarding/progress
func (h *ProgressHandler) HandleListProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entities": h.progress.All()})
}

// HandleGetProgress returns the projection of one entity.
// GET /api/onboarding/entities/{kind}/{id}/progress
func (h *ProgressHandler) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseEntityRef(w, r)
	if !ok {
		return
	}
	pr, ok := h.progress.Get(ref)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no progress recorded for "+ref.String())
		return
	}
	writeJSON(w, http.StatusOK, pr)
}
