package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/onboarding/internal/activity"
	"github.com/matthewbaird/onboarding/internal/signals"
)

// ActivityHandler serves the per-entity activity stream and its summary.
type ActivityHandler struct {
	store      activity.Store
	aggregator *signals.Aggregator
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store activity.Store, aggregator *signals.Aggregator) *ActivityHandler {
	return &ActivityHandler{store: store, aggregator: aggregator}
}

// HandleGetEntityActivity returns the activity feed of one entity, newest
// first.
// GET /api/onboarding/entities/{kind}/{id}/activity
func (h *ActivityHandler) HandleGetEntityActivity(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseEntityRef(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	opts := activity.DefaultQueryOptions()
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC 3339")
			return
		}
		opts.Since = &t
	}
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if mw := q.Get("min_weight"); mw != "" {
		opts.MinWeight = mw
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = min(n, 500)
		}
	}
	opts.Cursor = q.Get("cursor")

	entries, nextCursor, totalCount, err := h.store.QueryByEntity(r.Context(), ref, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}

	writeJSON(w, http.StatusOK, struct {
		Activities []activity.Entry `json:"activities"`
		NextCursor string           `json:"next_cursor,omitempty"`
		TotalCount int              `json:"total_count"`
	}{
		Activities: entries,
		NextCursor: nextCursor,
		TotalCount: totalCount,
	})
}

// HandleGetEntitySummary returns the activity summary of one entity.
// GET /api/onboarding/entities/{kind}/{id}/summary
func (h *ActivityHandler) HandleGetEntitySummary(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseEntityRef(w, r)
	if !ok {
		return
	}

	// Default: 30 days lookback.
	until := time.Now()
	since := until.AddDate(0, 0, -30)
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC 3339")
			return
		}
		since = t
	}

	opts := activity.QueryOptions{
		Since:     &since,
		MinWeight: "info",
		Limit:     500, // fetch all for aggregation
	}
	entries, _, _, err := h.store.QueryByEntity(r.Context(), ref, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.aggregator.Aggregate(entries, ref, since, until))
}
