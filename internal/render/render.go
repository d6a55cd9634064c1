// Package render draws section forms. Edit mode produces inputs whose name
// and id are the registry field names; review mode produces a read-only
// definition list. Output is a pure function of the Request.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/matthewbaird/onboarding/internal/funding"
	"github.com/matthewbaird/onboarding/internal/sections"
	"github.com/matthewbaird/onboarding/internal/types"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// Renderer turns a Request into markup.
type Renderer interface {
	Render(req Request) (Rendered, error)
}

// Request is everything needed to draw one section.
type Request struct {
	Ref        types.SectionRef
	Entity     string
	Mode       types.Mode
	Definition *sections.Definition
	Values     map[string]string
	// Errors maps field names to validation messages shown beside inputs.
	Errors map[string]string
	// Funding is set for the funding section only.
	Funding *Funding
}

// Funding is the funding panel of an account.
type Funding struct {
	Groups  []FundingGroup
	Editor  *Editor
	Pending *Pending
}

// FundingGroup is the instances of one funding type.
type FundingGroup struct {
	funding.Group
	Label string
}

// Editor is an open funding-instance editor overlay. Index is -1 for a new
// instance.
type Editor struct {
	Type   funding.Type
	Index  int
	Label  string
	Fields []sections.Field
	Values map[string]string
	Error  string
}

// Pending is a removal awaiting confirmation.
type Pending struct {
	Type  funding.Type
	Index int
	Name  string
}

// Rendered is the output of a render.
type Rendered struct {
	HTML string `json:"html"`
	// FieldIDs lists the section field names emitted, in order. Editor
	// overlay fields are not included.
	FieldIDs []string `json:"field_ids"`
}

// Templates renders with the embedded html templates.
type Templates struct {
	tmpl *template.Template
}

// New parses the embedded templates.
func New() (*Templates, error) {
	tmpl, err := template.New("render").ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Templates{tmpl: tmpl}, nil
}

// MustNew is New for package initialisation and tests.
func MustNew() *Templates {
	t, err := New()
	if err != nil {
		panic(err)
	}
	return t
}

type fieldView struct {
	sections.Field
	Value   string
	Checked bool
	Display string
	Error   string
}

type fundingGroupView struct {
	FundingGroup
	Max int
}

type editorView struct {
	Type   funding.Type
	Index  int
	Label  string
	New    bool
	Fields []fieldView
	Error  string
}

type fundingView struct {
	Groups    []fundingGroupView
	Total     int
	TotalFull bool
	Editor    *editorView
	Pending   *Pending
}

type page struct {
	Key     string
	Title   string
	Entity  string
	Fields  []fieldView
	Funding *fundingView
}

// Render draws req in its mode.
func (t *Templates) Render(req Request) (Rendered, error) {
	if req.Definition == nil {
		return Rendered{}, fmt.Errorf("render %s: %w", req.Ref, sections.ErrUnknownSection)
	}
	p := page{
		Key:    req.Ref.Key(),
		Title:  req.Definition.Title,
		Entity: req.Entity,
		Fields: fieldViews(req.Definition.Fields, req.Values, req.Errors),
	}
	if req.Funding != nil {
		p.Funding = buildFunding(req.Funding)
	}

	name := "edit"
	if req.Mode == types.ModeReview {
		name = "review"
	}
	var buf strings.Builder
	if err := t.tmpl.ExecuteTemplate(&buf, name, p); err != nil {
		return Rendered{}, fmt.Errorf("render %s: %w", req.Ref, err)
	}

	ids := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		ids[i] = f.Name
	}
	return Rendered{HTML: buf.String(), FieldIDs: ids}, nil
}

func fieldViews(fields []sections.Field, values, errs map[string]string) []fieldView {
	out := make([]fieldView, len(fields))
	for i, f := range fields {
		v := values[f.Name]
		out[i] = fieldView{
			Field:   f,
			Value:   v,
			Checked: f.Input.Checkable() && v == "true",
			Display: Display(f, v),
			Error:   errs[f.Name],
		}
	}
	return out
}

func buildFunding(f *Funding) *fundingView {
	fv := &fundingView{Pending: f.Pending}
	for _, g := range f.Groups {
		fv.Groups = append(fv.Groups, fundingGroupView{FundingGroup: g, Max: funding.MaxPerType})
		fv.Total += len(g.Instances)
	}
	fv.TotalFull = fv.Total >= funding.MaxTotal
	if e := f.Editor; e != nil {
		fv.Editor = &editorView{
			Type:   e.Type,
			Index:  e.Index,
			Label:  e.Label,
			New:    e.Index < 0,
			Fields: fieldViews(e.Fields, e.Values, nil),
			Error:  e.Error,
		}
	}
	return fv
}

// Display is the review text of a field value: option labels for choices,
// Yes/No for checkboxes and a masked tail for sensitive values.
func Display(f sections.Field, value string) string {
	value = strings.TrimSpace(value)
	switch {
	case f.Input.Checkable():
		if value == "true" {
			return "Yes"
		}
		return "No"
	case value == "":
		return ""
	case f.Input.Choice():
		return f.OptionLabel(value)
	case f.Sensitive:
		return mask(value)
	}
	return value
}

// mask keeps the last four characters.
func mask(value string) string {
	r := []rune(value)
	if len(r) <= 4 {
		return strings.Repeat("•", len(r))
	}
	return strings.Repeat("•", len(r)-4) + string(r[len(r)-4:])
}
