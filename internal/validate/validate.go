// Package validate runs the save-time field checks (email shape, minimum age,
// SSN and phone format). Each check is a CEL expression attached to a field in
// the section registry, evaluated against the field's value.
package validate

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/matthewbaird/onboarding/internal/sections"
)

// ErrInvalid matches every *Error.
var ErrInvalid = errors.New("validation failed")

// Error carries one message per failing field.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	names := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+e.Fields[n])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Error) Is(target error) bool { return target == ErrInvalid }

type program struct {
	prg     cel.Program
	message string
}

// Validator holds the compiled rules of every field in the registry.
type Validator struct {
	programs map[string]program // keyed by section + "." + field
	now      func() time.Time
}

// New compiles every rule declared in the registry. A rule that does not
// compile to a boolean expression is a registry bug and fails construction.
func New(registry *sections.Registry) (*Validator, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.StringType),
		cel.Variable("age", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	v := &Validator{programs: make(map[string]program), now: time.Now}
	for _, def := range registry.Definitions() {
		for _, f := range def.Fields {
			if f.Rule == "" {
				continue
			}
			ast, iss := env.Compile(f.Rule)
			if iss != nil && iss.Err() != nil {
				return nil, fmt.Errorf("section %s field %s: compiling rule: %w", def.Section, f.Name, iss.Err())
			}
			if !ast.OutputType().IsExactType(cel.BoolType) {
				return nil, fmt.Errorf("section %s field %s: rule must be boolean, got %s", def.Section, f.Name, ast.OutputType())
			}
			prg, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("section %s field %s: building program: %w", def.Section, f.Name, err)
			}
			msg := f.Message
			if msg == "" {
				msg = f.Label + " is invalid"
			}
			v.programs[key(string(def.Section), f.Name)] = program{prg: prg, message: msg}
		}
	}
	return v, nil
}

func key(section, field string) string { return section + "." + field }

// Check validates the non-blank values of a section's fields. Blank fields are
// left to completion tracking. It returns nil or an *Error.
func (v *Validator) Check(def *sections.Definition, values map[string]string) error {
	failures := map[string]string{}
	for _, f := range def.Fields {
		p, ok := v.programs[key(string(def.Section), f.Name)]
		if !ok {
			continue
		}
		val := strings.TrimSpace(values[f.Name])
		if val == "" {
			continue
		}
		out, _, err := p.prg.Eval(map[string]any{
			"value": val,
			"age":   AgeYears(val, v.now()),
		})
		if err != nil {
			failures[f.Name] = p.message
			continue
		}
		if ok, isBool := out.Value().(bool); !isBool || !ok {
			failures[f.Name] = p.message
		}
	}
	if len(failures) > 0 {
		return &Error{Fields: failures}
	}
	return nil
}

// AgeYears returns the whole years between a yyyy-mm-dd date and now, or -1
// when the value is not such a date.
func AgeYears(value string, now time.Time) int64 {
	dob, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return -1
	}
	years := int64(now.Year() - dob.Year())
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}
