// Package completion tracks which sections of which entities are complete.
//
// A section is complete when every required field of its definition is
// satisfied. An entity is complete when every section its kind declares is
// complete; that aggregate is always derived from the section cells and never
// stored.
package completion

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/matthewbaird/onboarding/internal/sections"
	"github.com/matthewbaird/onboarding/internal/types"
)

// ErrSectionNotValid is returned when a status write targets a section the
// entity's kind does not have.
var ErrSectionNotValid = errors.New("section not valid for entity kind")

// Value is the current state of one form field as seen by the tracker.
type Value struct {
	Input   sections.Input
	Text    string
	Checked bool
}

// Satisfied reports whether the value fills a required field: checkable
// inputs must be checked, choices need a selected value, and everything else
// needs non-blank trimmed text.
func (v Value) Satisfied() bool {
	switch {
	case v.Input.Checkable():
		return v.Checked
	case v.Input.Choice():
		return v.Text != ""
	default:
		return strings.TrimSpace(v.Text) != ""
	}
}

// FieldReader resolves the current value of a form field by name. The second
// result is false when the field does not exist.
type FieldReader interface {
	Field(name string) (Value, bool)
}

// IsSectionComplete reports whether every required field of def is satisfied
// by r. A missing field counts as incomplete.
func IsSectionComplete(def *sections.Definition, r FieldReader) bool {
	for _, name := range def.Required() {
		v, ok := r.Field(name)
		if !ok || !v.Satisfied() {
			return false
		}
	}
	return true
}

// Missing returns the required fields of def that r does not satisfy.
func Missing(def *sections.Definition, r FieldReader) []string {
	var missing []string
	for _, name := range def.Required() {
		if v, ok := r.Field(name); !ok || !v.Satisfied() {
			missing = append(missing, name)
		}
	}
	return missing
}

// Change describes the visual state after one status write.
type Change struct {
	Ref             types.SectionRef `json:"ref"`
	SectionComplete bool             `json:"section_complete"`
	EntityComplete  bool             `json:"entity_complete"`
}

// Observer receives the propagation for every status write, synchronously
// and in write order.
type Observer interface {
	StatusChanged(c Change)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(c Change)

func (f ObserverFunc) StatusChanged(c Change) { f(c) }

// Tracker holds the completion table {entity -> section -> bool}.
type Tracker struct {
	mu       sync.RWMutex
	registry *sections.Registry
	cells    map[types.EntityRef]map[types.Section]bool
	observer Observer
}

// NewTracker creates an empty tracker. The observer may be nil.
func NewTracker(registry *sections.Registry, observer Observer) *Tracker {
	return &Tracker{
		registry: registry,
		cells:    make(map[types.EntityRef]map[types.Section]bool),
		observer: observer,
	}
}

// Track seeds an incomplete cell for every section of the entity's kind.
// Existing cells are left alone.
func (t *Tracker) Track(ref types.EntityRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := t.row(ref)
	for _, s := range t.registry.Sections(ref.Kind) {
		if _, ok := row[s]; !ok {
			row[s] = false
		}
	}
}

func (t *Tracker) row(ref types.EntityRef) map[types.Section]bool {
	row, ok := t.cells[ref]
	if !ok {
		row = make(map[types.Section]bool)
		t.cells[ref] = row
	}
	return row
}

// SetStatus writes exactly one cell, recomputes the entity's aggregate and
// notifies the observer before returning.
func (t *Tracker) SetStatus(ref types.SectionRef, complete bool) (Change, error) {
	if !t.registry.Valid(ref.Kind, ref.Section) {
		return Change{}, fmt.Errorf("%w: %s", ErrSectionNotValid, ref)
	}

	t.mu.Lock()
	t.row(ref.Entity())[ref.Section] = complete
	c := Change{
		Ref:             ref,
		SectionComplete: complete,
		EntityComplete:  t.aggregateLocked(ref.Entity()),
	}
	t.mu.Unlock()

	if t.observer != nil {
		t.observer.StatusChanged(c)
	}
	return c, nil
}

// Status returns one cell. The second result is false when the cell was never
// written or seeded.
func (t *Tracker) Status(ref types.SectionRef) (complete, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	complete, ok = t.cells[ref.Entity()][ref.Section]
	return complete, ok
}

// Aggregate is the AND of every section the entity's kind declares. Sections
// without a cell read as incomplete, and a kind with no sections is never
// complete.
func (t *Tracker) Aggregate(ref types.EntityRef) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.aggregateLocked(ref)
}

func (t *Tracker) aggregateLocked(ref types.EntityRef) bool {
	secs := t.registry.Sections(ref.Kind)
	if len(secs) == 0 {
		return false
	}
	row := t.cells[ref]
	for _, s := range secs {
		if !row[s] {
			return false
		}
	}
	return true
}

// SectionStatus is one cell of an entity row.
type SectionStatus struct {
	Section  types.Section `json:"section"`
	Complete bool          `json:"complete"`
}

// EntityStatus is one row of the completion table with its derived aggregate.
type EntityStatus struct {
	Ref      types.EntityRef `json:"ref"`
	Complete bool            `json:"complete"`
	Sections []SectionStatus `json:"sections"`
}

// Snapshot returns the rows for the given entities in the given order, with
// sections in registry order.
func (t *Tracker) Snapshot(refs []types.EntityRef) []EntityStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]EntityStatus, 0, len(refs))
	for _, ref := range refs {
		row := t.cells[ref]
		es := EntityStatus{Ref: ref, Complete: t.aggregateLocked(ref)}
		for _, s := range t.registry.Sections(ref.Kind) {
			es.Sections = append(es.Sections, SectionStatus{Section: s, Complete: row[s]})
		}
		out = append(out, es)
	}
	return out
}
