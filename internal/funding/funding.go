// Package funding provides the funding sub-registry of an account: a bounded
// collection of funding instances grouped by funding type, with a two-step
// confirm-then-commit delete.
package funding

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is a funding method.
type Type string

const (
	TypeACAT         Type = "acat"
	TypeACH          Type = "ach"
	TypeInitialACH   Type = "initial-ach"
	TypeWithdrawal   Type = "withdrawal"
	TypeContribution Type = "contribution"
)

// Types lists every funding type in display order.
var Types = []Type{TypeACAT, TypeACH, TypeInitialACH, TypeWithdrawal, TypeContribution}

// ParseType converts a wire string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !slices.Contains(Types, t) {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

const (
	// MaxPerType is the most instances one funding type may hold.
	MaxPerType = 4
	// MaxTotal is the most instances one account may hold across all types.
	MaxTotal = 20
)

var (
	ErrCapacity = errors.New("funding capacity exceeded")
	// ErrTypeCapacity and ErrTotalCapacity both match ErrCapacity.
	ErrTypeCapacity  = fmt.Errorf("%w: at most %d per type", ErrCapacity, MaxPerType)
	ErrTotalCapacity = fmt.Errorf("%w: at most %d per account", ErrCapacity, MaxTotal)

	ErrBlankName   = errors.New("funding instance name is required")
	ErrNotFound    = errors.New("funding instance not found")
	ErrUnknownType = errors.New("unknown funding type")
	// ErrResolved is returned when a pending removal is committed or
	// cancelled a second time.
	ErrResolved = errors.New("removal already resolved")
)

// Instance is one configured funding method.
type Instance struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Name      string            `json:"name"`
	Details   string            `json:"details"`
	CreatedAt time.Time         `json:"created_at"`
	Fields    map[string]string `json:"fields"`
}

func (in Instance) clone() Instance {
	in.Fields = maps.Clone(in.Fields)
	return in
}

// Collection holds the funding instances of one account. Instances live only
// in memory.
type Collection struct {
	mu        sync.Mutex
	instances map[Type][]Instance
	now       func() time.Time
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{
		instances: make(map[Type][]Instance, len(Types)),
		now:       time.Now,
	}
}

func checkType(t Type) error {
	if !slices.Contains(Types, t) {
		return fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return nil
}

// build validates fields and derives the instance's name, details and
// type-specific field set. Only the name is required.
func build(t Type, fields map[string]string) (Instance, error) {
	name := strings.TrimSpace(fields["name"])
	if name == "" {
		return Instance{}, ErrBlankName
	}
	rest := make(map[string]string, len(fields))
	for k, v := range fields {
		if k != "name" {
			rest[k] = strings.TrimSpace(v)
		}
	}
	return Instance{
		Type:    t,
		Name:    name,
		Details: Details(t, rest),
		Fields:  rest,
	}, nil
}

// Add appends a new instance. It is rejected when the account already holds
// MaxTotal instances or the type already holds MaxPerType; nothing is
// mutated on rejection.
func (c *Collection) Add(t Type, fields map[string]string) (Instance, error) {
	if err := checkType(t); err != nil {
		return Instance{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.totalLocked() >= MaxTotal {
		return Instance{}, ErrTotalCapacity
	}
	if len(c.instances[t]) >= MaxPerType {
		return Instance{}, fmt.Errorf("%s: %w", t, ErrTypeCapacity)
	}
	in, err := build(t, fields)
	if err != nil {
		return Instance{}, err
	}
	in.ID = uuid.NewString()
	in.CreatedAt = c.now()
	c.instances[t] = append(c.instances[t], in)
	return in.clone(), nil
}

// Update replaces the instance at index in place, keeping its id and
// creation time.
func (c *Collection) Update(t Type, index int, fields map[string]string) (Instance, error) {
	if err := checkType(t); err != nil {
		return Instance{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.instances[t]
	if index < 0 || index >= len(list) {
		return Instance{}, fmt.Errorf("%w: %s[%d]", ErrNotFound, t, index)
	}
	in, err := build(t, fields)
	if err != nil {
		return Instance{}, err
	}
	in.ID = list[index].ID
	in.CreatedAt = list[index].CreatedAt
	list[index] = in
	return in.clone(), nil
}

// Get returns the instance at index.
func (c *Collection) Get(t Type, index int) (Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.instances[t]
	if index < 0 || index >= len(list) {
		return Instance{}, fmt.Errorf("%w: %s[%d]", ErrNotFound, t, index)
	}
	return list[index].clone(), nil
}

// PendingRemoval is the first half of a delete. Nothing changes until Commit.
type PendingRemoval struct {
	c        *Collection
	Type     Type
	Index    int
	Instance Instance
	resolved bool
}

// RequestRemoval starts a delete of the instance at index. The caller must
// obtain the user's confirmation and then Commit or Cancel.
func (c *Collection) RequestRemoval(t Type, index int) (*PendingRemoval, error) {
	in, err := c.Get(t, index)
	if err != nil {
		return nil, err
	}
	return &PendingRemoval{c: c, Type: t, Index: index, Instance: in}, nil
}

// Commit removes the instance. If the instance at the recorded index is no
// longer the one that was confirmed, nothing is removed.
func (p *PendingRemoval) Commit() error {
	if p.resolved {
		return ErrResolved
	}
	p.resolved = true

	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.instances[p.Type]
	if p.Index >= len(list) || list[p.Index].ID != p.Instance.ID {
		return fmt.Errorf("%w: %s[%d] changed before removal", ErrNotFound, p.Type, p.Index)
	}
	c.instances[p.Type] = slices.Delete(list, p.Index, p.Index+1)
	return nil
}

// Cancel abandons the removal.
func (p *PendingRemoval) Cancel() error {
	if p.resolved {
		return ErrResolved
	}
	p.resolved = true
	return nil
}

// Count returns the number of instances of one type.
func (c *Collection) Count(t Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.instances[t])
}

// Total returns the number of instances across all types.
func (c *Collection) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalLocked()
}

func (c *Collection) totalLocked() int {
	n := 0
	for _, list := range c.instances {
		n += len(list)
	}
	return n
}

// List returns copies of the instances of one type in insertion order.
func (c *Collection) List(t Type) []Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Instance, 0, len(c.instances[t]))
	for _, in := range c.instances[t] {
		out = append(out, in.clone())
	}
	return out
}

// Group is the instances of one type.
type Group struct {
	Type      Type       `json:"type"`
	Instances []Instance `json:"instances"`
	Full      bool       `json:"full"`
}

// Groups returns every type in display order with its instances.
func (c *Collection) Groups() []Group {
	groups := make([]Group, 0, len(Types))
	for _, t := range Types {
		list := c.List(t)
		groups = append(groups, Group{Type: t, Instances: list, Full: len(list) >= MaxPerType})
	}
	return groups
}
