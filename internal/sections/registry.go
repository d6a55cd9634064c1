// Package sections provides the section registry: which sections each entity
// kind has, which fields each section renders, and which of those fields are
// required for the section to count as complete.
//
// The registry is declared in sections.cue, embedded into the binary and
// decoded once at startup. It is read-only afterwards and safe for
// concurrent use.
package sections

import (
	_ "embed"
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/matthewbaird/onboarding/internal/types"
)

//go:embed sections.cue
var source []byte

// ErrUnknownSection is returned for section names the registry does not
// declare, or sections that are not valid for the requested entity kind.
var ErrUnknownSection = errors.New("unknown section")

// Input classifies how a field's value is read and rendered.
type Input string

const (
	InputText     Input = "text"
	InputEmail    Input = "email"
	InputTel      Input = "tel"
	InputDate     Input = "date"
	InputNumber   Input = "number"
	InputTextarea Input = "textarea"
	InputSelect   Input = "select"
	InputRadio    Input = "radio"
	InputCheckbox Input = "checkbox"
)

// Checkable reports whether the input is satisfied by being checked rather
// than by carrying a value.
func (in Input) Checkable() bool {
	return in == InputCheckbox
}

// Choice reports whether the input picks one value from a fixed option list.
func (in Input) Choice() bool {
	return in == InputSelect || in == InputRadio
}

// Option is one selectable value of a select or radio field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field describes one form field.
type Field struct {
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Input     Input    `json:"input"`
	Required  bool     `json:"required"`
	Sensitive bool     `json:"sensitive,omitempty"`
	Options   []Option `json:"options,omitempty"`
	Rule      string   `json:"rule,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// OptionLabel returns the display label for a choice value, or the value
// itself when no option matches.
func (f Field) OptionLabel(value string) string {
	for _, o := range f.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

// Definition is the declared shape of one section.
type Definition struct {
	Section  types.Section `json:"section"`
	Title    string        `json:"title"`
	Kinds    []types.Kind  `json:"kinds"`
	Fields   []Field       `json:"fields"`
	required []string
	index    map[string]int
}

// Required returns the names of the fields that must be satisfied for the
// section to be complete, in declaration order.
func (d *Definition) Required() []string {
	return d.required
}

// Field looks up a field by name.
func (d *Definition) Field(name string) (Field, bool) {
	i, ok := d.index[name]
	if !ok {
		return Field{}, false
	}
	return d.Fields[i], true
}

// FundingType describes the editor fields for one funding instance type.
type FundingType struct {
	Label  string  `json:"label"`
	Fields []Field `json:"fields"`
}

// Registry holds all section definitions keyed by section name.
type Registry struct {
	defs    map[types.Section]*Definition
	kinds   map[types.Kind][]types.Section
	funding map[string]FundingType
}

type document struct {
	Kinds    map[string][]string    `json:"kinds"`
	Sections map[string]Definition  `json:"sections"`
	Funding  map[string]FundingType `json:"funding"`
}

// Load decodes the embedded registry.
func Load() (*Registry, error) {
	return Parse(source)
}

// MustLoad is Load for package initialisation and tests.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

// Parse compiles a CUE registry document and decodes it.
func Parse(src []byte) (*Registry, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(src, cue.Filename("sections.cue"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("compiling section registry: %w", err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating section registry: %w", err)
	}

	var doc document
	if err := val.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding section registry: %w", err)
	}

	r := &Registry{
		defs:    make(map[types.Section]*Definition, len(doc.Sections)),
		kinds:   make(map[types.Kind][]types.Section, len(doc.Kinds)),
		funding: doc.Funding,
	}
	for name, d := range doc.Sections {
		def := d
		def.Section = types.Section(name)
		def.index = make(map[string]int, len(def.Fields))
		for i, f := range def.Fields {
			if _, dup := def.index[f.Name]; dup {
				return nil, fmt.Errorf("section %s: duplicate field %q", name, f.Name)
			}
			def.index[f.Name] = i
			if f.Required {
				def.required = append(def.required, f.Name)
			}
		}
		r.defs[def.Section] = &def
	}
	for kindName, secs := range doc.Kinds {
		kind, err := types.ParseKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("section registry: %w", err)
		}
		for _, s := range secs {
			def, ok := r.defs[types.Section(s)]
			if !ok {
				return nil, fmt.Errorf("kind %s lists undeclared section %q", kindName, s)
			}
			if !def.allows(kind) {
				return nil, fmt.Errorf("section %s is not declared for kind %s", s, kindName)
			}
			r.kinds[kind] = append(r.kinds[kind], def.Section)
		}
	}
	return r, nil
}

func (d *Definition) allows(kind types.Kind) bool {
	for _, k := range d.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Definitions returns every section definition in sidebar order.
func (r *Registry) Definitions() []*Definition {
	out := make([]*Definition, 0, len(r.defs))
	for _, s := range types.AllSections {
		if def, ok := r.defs[s]; ok {
			out = append(out, def)
		}
	}
	return out
}

// Sections returns the sections of an entity kind in sidebar order.
func (r *Registry) Sections(kind types.Kind) []types.Section {
	return r.kinds[kind]
}

// Valid reports whether section s belongs to entities of the given kind.
func (r *Registry) Valid(kind types.Kind, s types.Section) bool {
	for _, sec := range r.kinds[kind] {
		if sec == s {
			return true
		}
	}
	return false
}

// Definition returns the definition of a section.
func (r *Registry) Definition(s types.Section) (*Definition, error) {
	def, ok := r.defs[s]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, s)
	}
	return def, nil
}

// Resolve returns the definition for a section reference, rejecting sections
// that are not valid for the reference's entity kind.
func (r *Registry) Resolve(ref types.SectionRef) (*Definition, error) {
	if !r.Valid(ref.Kind, ref.Section) {
		return nil, fmt.Errorf("%w: %q for %s", ErrUnknownSection, ref.Section, ref.Kind)
	}
	return r.Definition(ref.Section)
}

// FundingType returns the editor definition for a funding instance type.
func (r *Registry) FundingType(name string) (FundingType, bool) {
	ft, ok := r.funding[name]
	return ft, ok
}
