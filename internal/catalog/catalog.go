// Package catalog provides the entity catalog: the read-only lookup of the
// members and accounts being onboarded and their demo attribute sets.
package catalog

import (
	"errors"
	"fmt"
	"maps"

	"github.com/matthewbaird/onboarding/internal/types"
)

// ErrNotFound is returned when an entity id is not in the catalog.
var ErrNotFound = errors.New("entity not found")

// Entity is one member or account and its attribute bag. Attribute keys are
// form field names so the bag can pre-fill a section form directly.
type Entity struct {
	Ref         types.EntityRef   `json:"ref"`
	DisplayName string            `json:"display_name"`
	Subtype     string            `json:"subtype"` // "person", "trust", "joint", "ira"
	Attributes  map[string]string `json:"attributes"`
}

// Clone returns a deep copy so callers can cache it without sharing the
// catalog's attribute map.
func (e Entity) Clone() Entity {
	e.Attributes = maps.Clone(e.Attributes)
	if e.Attributes == nil {
		e.Attributes = map[string]string{}
	}
	return e
}

// Catalog is an in-memory entity lookup. It is safe for concurrent reads.
type Catalog struct {
	byRef    map[types.EntityRef]Entity
	members  []types.EntityRef
	accounts []types.EntityRef
}

// New builds a catalog from the given entities, preserving their order
// within each kind.
func New(entities []Entity) (*Catalog, error) {
	c := &Catalog{byRef: make(map[types.EntityRef]Entity, len(entities))}
	for _, e := range entities {
		if !e.Ref.Kind.Valid() {
			return nil, fmt.Errorf("entity %q: invalid kind %q", e.Ref.ID, e.Ref.Kind)
		}
		if e.Ref.ID == "" {
			return nil, fmt.Errorf("entity of kind %s has an empty id", e.Ref.Kind)
		}
		if _, dup := c.byRef[e.Ref]; dup {
			return nil, fmt.Errorf("duplicate entity %s", e.Ref)
		}
		c.byRef[e.Ref] = e.Clone()
		switch e.Ref.Kind {
		case types.KindMember:
			c.members = append(c.members, e.Ref)
		case types.KindAccount:
			c.accounts = append(c.accounts, e.Ref)
		}
	}
	return c, nil
}

// Entity returns a copy of the entity with the given reference.
func (c *Catalog) Entity(ref types.EntityRef) (Entity, error) {
	e, ok := c.byRef[ref]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return e.Clone(), nil
}

// Members returns member references in sidebar order.
func (c *Catalog) Members() []types.EntityRef {
	return c.members
}

// Accounts returns account references in sidebar order.
func (c *Catalog) Accounts() []types.EntityRef {
	return c.accounts
}

// All returns members followed by accounts.
func (c *Catalog) All() []types.EntityRef {
	all := make([]types.EntityRef, 0, len(c.members)+len(c.accounts))
	all = append(all, c.members...)
	return append(all, c.accounts...)
}

// DisplayName returns the entity's display name, or its id when unknown.
func (c *Catalog) DisplayName(ref types.EntityRef) string {
	if e, ok := c.byRef[ref]; ok {
		return e.DisplayName
	}
	return ref.ID
}
