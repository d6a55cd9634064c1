package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/onboarding/internal/types"
)

// Categories.
const (
	CategoryCompletion  = "completion"
	CategoryFunding     = "funding"
	CategoryPersistence = "persistence"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string
	EventType        string
	OccurredAt       time.Time
	Session          string
	AffectedEntities []AffectedEntity
	Summary          string
	Category         string
	Weight           string // "major", "minor", "info"
	Payload          json.RawMessage
}

// AffectedEntity is an entity an event touched and its role in it.
type AffectedEntity struct {
	Ref  types.EntityRef
	Role string // "subject", "related"
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func subject(ref types.EntityRef) []AffectedEntity {
	return []AffectedEntity{{Ref: ref, Role: "subject"}}
}

// ── Completion events ────────────────────────────────────────────────────────

// SectionStatusChangedPayload carries event-specific data for SectionStatusChanged.
type SectionStatusChangedPayload struct {
	Section        types.SectionRef `json:"section"`
	Complete       bool             `json:"complete"`
	EntityComplete bool             `json:"entity_complete"`
	Missing        []string         `json:"missing,omitempty"`
}

func NewSectionStatusChanged(session string, p SectionStatusChangedPayload) DomainEvent {
	state := "incomplete"
	if p.Complete {
		state = "complete"
	}
	weight := "minor"
	if p.EntityComplete {
		weight = "major"
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        "section_status_changed",
		OccurredAt:       time.Now(),
		Session:          session,
		AffectedEntities: subject(p.Section.Entity()),
		Summary:          fmt.Sprintf("%s marked %s", p.Section.Section, state),
		Category:         CategoryCompletion,
		Weight:           weight,
		Payload:          mustJSON(p),
	}
}

// ── Funding events ───────────────────────────────────────────────────────────

// FundingPayload carries event-specific data for funding instance changes.
type FundingPayload struct {
	Account    types.EntityRef `json:"account"`
	Type       string          `json:"type"`
	Index      int             `json:"index"`
	InstanceID string          `json:"instance_id"`
	Name       string          `json:"name"`
	Details    string          `json:"details,omitempty"`
}

func newFunding(session, eventType, verb string, p FundingPayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        eventType,
		OccurredAt:       time.Now(),
		Session:          session,
		AffectedEntities: subject(p.Account),
		Summary:          fmt.Sprintf("%s funding %q %s", p.Type, p.Name, verb),
		Category:         CategoryFunding,
		Weight:           "minor",
		Payload:          mustJSON(p),
	}
}

func NewFundingAdded(session string, p FundingPayload) DomainEvent {
	return newFunding(session, "funding_added", "added", p)
}

func NewFundingUpdated(session string, p FundingPayload) DomainEvent {
	return newFunding(session, "funding_updated", "updated", p)
}

func NewFundingRemoved(session string, p FundingPayload) DomainEvent {
	return newFunding(session, "funding_removed", "removed", p)
}

// ── Persistence events ───────────────────────────────────────────────────────

// SnapshotSavedPayload carries event-specific data for SnapshotSaved.
type SnapshotSavedPayload struct {
	Key       string           `json:"key"`
	Section   types.SectionRef `json:"section"`
	Fields    int              `json:"fields"`
	Debounced bool             `json:"debounced"`
}

func NewSnapshotSaved(session string, p SnapshotSavedPayload) DomainEvent {
	how := "saved"
	if p.Debounced {
		how = "auto-saved"
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        "snapshot_saved",
		OccurredAt:       time.Now(),
		Session:          session,
		AffectedEntities: subject(p.Section.Entity()),
		Summary:          fmt.Sprintf("%s %s (%d fields)", p.Section.Section, how, p.Fields),
		Category:         CategoryPersistence,
		Weight:           "info",
		Payload:          mustJSON(p),
	}
}
