// Package worker contains event consumer workers that maintain derived data stores.
package worker

import (
	"context"
	"encoding/json"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matthewbaird/onboarding/internal/event"
	"github.com/matthewbaird/onboarding/internal/types"
)

// Progress is the projected onboarding state of one entity across every
// session that touched it.
type Progress struct {
	Ref       types.EntityRef        `json:"ref"`
	Sections  map[types.Section]bool `json:"sections"`
	Complete  bool                   `json:"complete"`
	Funding   int                    `json:"funding"`
	SavedAt   time.Time              `json:"saved_at,omitzero"`
	Session   string                 `json:"session"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// ProgressWorker consumes domain events from the event bus and maintains
// the progress projection.
type ProgressWorker struct {
	mu       sync.RWMutex
	entities map[types.EntityRef]*Progress
}

// NewProgressWorker creates a new progress worker.
func NewProgressWorker() *ProgressWorker {
	return &ProgressWorker{entities: make(map[types.EntityRef]*Progress)}
}

// HandleEvent processes a domain event and updates the projection.
func (w *ProgressWorker) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch evt.EventType {
	case "section_status_changed":
		var p event.SectionStatusChangedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return err
		}
		pr := w.entry(p.Section.Entity(), evt)
		pr.Sections[p.Section.Section] = p.Complete
		pr.Complete = p.EntityComplete
	case "funding_added", "funding_removed":
		var p event.FundingPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return err
		}
		pr := w.entry(p.Account, evt)
		if evt.EventType == "funding_added" {
			pr.Funding++
		} else if pr.Funding > 0 {
			pr.Funding--
		}
	case "snapshot_saved":
		var p event.SnapshotSavedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return err
		}
		w.entry(p.Section.Entity(), evt).SavedAt = evt.OccurredAt
	default:
		return nil
	}
	log.Printf("progress: applied %s from session %s", evt.EventType, evt.Session)
	return nil
}

func (w *ProgressWorker) entry(ref types.EntityRef, evt event.DomainEvent) *Progress {
	pr, ok := w.entities[ref]
	if !ok {
		pr = &Progress{Ref: ref, Sections: make(map[types.Section]bool)}
		w.entities[ref] = pr
	}
	pr.Session = evt.Session
	pr.UpdatedAt = evt.OccurredAt
	return pr
}

// Get returns the projection of one entity.
func (w *ProgressWorker) Get(ref types.EntityRef) (Progress, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	pr, ok := w.entities[ref]
	if !ok {
		return Progress{}, false
	}
	return clone(pr), true
}

// All returns every projected entity ordered by kind then id.
func (w *ProgressWorker) All() []Progress {
	w.mu.RLock()
	out := make([]Progress, 0, len(w.entities))
	for _, pr := range w.entities {
		out = append(out, clone(pr))
	}
	w.mu.RUnlock()
	slices.SortFunc(out, func(a, b Progress) int {
		if c := strings.Compare(string(a.Ref.Kind), string(b.Ref.Kind)); c != 0 {
			return c
		}
		return strings.Compare(a.Ref.ID, b.Ref.ID)
	})
	return out
}

func clone(pr *Progress) Progress {
	out := *pr
	out.Sections = make(map[types.Section]bool, len(pr.Sections))
	for k, v := range pr.Sections {
		out.Sections[k] = v
	}
	return out
}
