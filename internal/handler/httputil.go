package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/onboarding/internal/catalog"
	"github.com/matthewbaird/onboarding/internal/sections"
	"github.com/matthewbaird/onboarding/internal/types"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON encode error: %v", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// parseEntityRef extracts the {kind} and {id} path parameters.
func parseEntityRef(w http.ResponseWriter, r *http.Request) (types.EntityRef, bool) {
	kind, err := types.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_KIND", err.Error())
		return types.EntityRef{}, false
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "entity id is required")
		return types.EntityRef{}, false
	}
	return types.EntityRef{Kind: kind, ID: id}, true
}

// domainErrorToHTTP maps lookup errors to appropriate HTTP responses.
func domainErrorToHTTP(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, sections.ErrUnknownSection):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, types.ErrInvalidRef):
		writeError(w, http.StatusBadRequest, "INVALID_REF", err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
