// Package activity keeps the per-entity activity stream: one entry per
// entity a domain event touched, newest first.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matthewbaird/onboarding/internal/types"
)

// Entry is one domain event as seen from one affected entity.
type Entry struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Entity     types.EntityRef `json:"entity"`
	Role       string          `json:"role"` // "subject", "related"
	Session    string          `json:"session,omitempty"`
	Summary    string          `json:"summary"`
	Category   string          `json:"category"` // "completion", "funding", "persistence"
	Weight     string          `json:"weight"`   // "major", "minor", "info"
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Store is the interface for reading and writing activity entries.
type Store interface {
	// WriteEntries writes one or more activity entries (one event → many entries).
	WriteEntries(ctx context.Context, entries []Entry) error

	// QueryByEntity returns activity entries for one entity, newest first.
	QueryByEntity(ctx context.Context, ref types.EntityRef, opts QueryOptions) (entries []Entry, nextCursor string, totalCount int, err error)
}
