// Package form holds the explicit state of one section form: the current
// value of every field the section declares. It is the source of truth the
// renderer draws from and the completion tracker reads.
package form

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/matthewbaird/onboarding/internal/completion"
	"github.com/matthewbaird/onboarding/internal/sections"
	"github.com/matthewbaird/onboarding/internal/types"
)

var (
	// ErrUnknownField is returned for edits to fields the section does not declare.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidOption is returned when a choice field is set to a value outside its options.
	ErrInvalidOption = errors.New("invalid option")
)

// checkedValue is the stored string of a checked checkbox.
const checkedValue = "true"

// State is the value table of one section form.
type State struct {
	ref    types.SectionRef
	def    *sections.Definition
	values map[string]string
}

// New creates an empty form for the given section.
func New(ref types.SectionRef, def *sections.Definition) *State {
	return &State{
		ref:    ref,
		def:    def,
		values: make(map[string]string, len(def.Fields)),
	}
}

// Ref returns the section this form belongs to.
func (s *State) Ref() types.SectionRef { return s.ref }

// Definition returns the section definition.
func (s *State) Definition() *sections.Definition { return s.def }

// Fill copies values for declared fields from data. Unknown keys and values
// that fail normalisation are ignored, so an entity's whole attribute bag can
// be passed in.
func (s *State) Fill(data map[string]string) {
	for _, f := range s.def.Fields {
		v, ok := data[f.Name]
		if !ok {
			continue
		}
		if norm, err := normalize(f, v); err == nil {
			s.values[f.Name] = norm
		}
	}
}

// Set assigns a field value. Checkbox values are normalised to checked or
// unchecked; choice values must be empty or one of the field's options.
func (s *State) Set(name, value string) error {
	f, ok := s.def.Field(name)
	if !ok {
		return fmt.Errorf("%w: %q in %s", ErrUnknownField, name, s.ref.Section)
	}
	norm, err := normalize(f, value)
	if err != nil {
		return err
	}
	s.values[name] = norm
	return nil
}

// SetChecked checks or unchecks a checkbox field.
func (s *State) SetChecked(name string, checked bool) error {
	v := ""
	if checked {
		v = checkedValue
	}
	return s.Set(name, v)
}

func normalize(f sections.Field, value string) (string, error) {
	switch {
	case f.Input.Checkable():
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "on", "yes", "1", "checked":
			return checkedValue, nil
		default:
			return "", nil
		}
	case f.Input.Choice():
		if value == "" {
			return "", nil
		}
		for _, o := range f.Options {
			if o.Value == value {
				return value, nil
			}
		}
		return "", fmt.Errorf("%w: %q for %s", ErrInvalidOption, value, f.Name)
	default:
		return value, nil
	}
}

// Value returns the stored string of a field ("" when unset).
func (s *State) Value(name string) string {
	return s.values[name]
}

// Field implements completion.FieldReader. Every declared field is present,
// set or not.
func (s *State) Field(name string) (completion.Value, bool) {
	f, ok := s.def.Field(name)
	if !ok {
		return completion.Value{}, false
	}
	v := s.values[name]
	return completion.Value{
		Input:   f.Input,
		Text:    v,
		Checked: f.Input.Checkable() && v == checkedValue,
	}, true
}

// Values returns a flat copy of every declared field, unset fields as "".
func (s *State) Values() map[string]string {
	out := make(map[string]string, len(s.def.Fields))
	for _, f := range s.def.Fields {
		out[f.Name] = s.values[f.Name]
	}
	return out
}

// Replace resets the form to exactly the declared fields of data.
func (s *State) Replace(data map[string]string) {
	clear(s.values)
	s.Fill(data)
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	return &State{ref: s.ref, def: s.def, values: maps.Clone(s.values)}
}
