package onboarding

import (
	"log"
	"maps"

	"github.com/matthewbaird/onboarding/internal/completion"
	"github.com/matthewbaird/onboarding/internal/funding"
	"github.com/matthewbaird/onboarding/internal/render"
	"github.com/matthewbaird/onboarding/internal/types"
)

// View is what a client needs to redraw after an event.
type View struct {
	Session   string            `json:"session"`
	Mode      types.Mode        `json:"mode"`
	Selection *types.SectionRef `json:"selection,omitempty"`
	Entity    string            `json:"entity,omitempty"`
	Panel     *render.Rendered  `json:"panel,omitempty"`
	// Complete is the selected section's status; Missing lists its
	// unsatisfied required fields.
	Complete bool                `json:"complete"`
	Missing  []string            `json:"missing,omitempty"`
	Errors   map[string]string   `json:"errors,omitempty"`
	Sidebar  []SidebarEntity     `json:"sidebar"`
	Overlay  *Overlay            `json:"overlay,omitempty"`
	Confirm  *Confirm            `json:"confirm,omitempty"`
	Changes  []completion.Change `json:"changes,omitempty"`
}

// SidebarEntity is one sidebar row: an entity, its aggregate and its
// sections.
type SidebarEntity struct {
	Ref      types.EntityRef            `json:"ref"`
	Name     string                     `json:"name"`
	Complete bool                       `json:"complete"`
	Sections []completion.SectionStatus `json:"sections"`
}

// Overlay identifies the open funding editor.
type Overlay struct {
	Type  funding.Type `json:"type"`
	Index int          `json:"index"`
	Error string       `json:"error,omitempty"`
}

// Confirm identifies the funding removal awaiting confirmation.
type Confirm struct {
	Type  funding.Type `json:"type"`
	Index int          `json:"index"`
	Name  string       `json:"name"`
}

// View renders the current state. Status changes are reported once.
func (c *Controller) View() (*View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, err := c.viewLocked()
	c.changes = nil
	return v, err
}

// Status returns the sidebar rows.
func (c *Controller) Status() []SidebarEntity {
	return c.sidebar()
}

func (c *Controller) sidebar() []SidebarEntity {
	rows := c.tracker.Snapshot(c.catalog.All())
	out := make([]SidebarEntity, len(rows))
	for i, r := range rows {
		out[i] = SidebarEntity{
			Ref:      r.Ref,
			Name:     c.catalog.DisplayName(r.Ref),
			Complete: r.Complete,
			Sections: r.Sections,
		}
	}
	return out
}

func (c *Controller) viewLocked() (*View, error) {
	v := &View{
		Session: c.session,
		Mode:    c.mode,
		Sidebar: c.sidebar(),
		Changes: c.changes,
	}
	if len(c.errors) > 0 {
		v.Errors = maps.Clone(c.errors)
	}
	if c.selection == nil {
		return v, nil
	}

	sel := *c.selection
	def := c.form.Definition()
	v.Selection = &sel
	v.Entity = c.catalog.DisplayName(sel.Entity())
	v.Complete, _ = c.tracker.Status(sel)
	v.Missing = completion.Missing(def, c.form)

	req := render.Request{
		Ref:        sel,
		Entity:     v.Entity,
		Mode:       c.mode,
		Definition: def,
		Values:     c.valuesLocked(),
		Errors:     c.errors,
	}
	if sel.Section == types.SectionFunding {
		req.Funding = c.fundingPanel(sel.Entity())
		if c.editor != nil {
			v.Overlay = &Overlay{Type: c.editor.typ, Index: c.editor.index, Error: c.editor.err}
		}
		if c.pending != nil {
			v.Confirm = &Confirm{
				Type:  c.pending.removal.Type,
				Index: c.pending.removal.Index,
				Name:  c.pending.removal.Instance.Name,
			}
		}
	}

	out, err := c.renderer.Render(req)
	if err != nil {
		return v, err
	}
	if missing := missingRequired(def, out.FieldIDs); len(missing) > 0 {
		log.Printf("onboarding: %s: renderer omitted required fields %v of %s", c.session, missing, sel)
	}
	v.Panel = &out
	return v, nil
}

func (c *Controller) fundingPanel(account types.EntityRef) *render.Funding {
	panel := &render.Funding{}
	for _, g := range c.collection(account).Groups() {
		ft, _ := c.registry.FundingType(string(g.Type))
		panel.Groups = append(panel.Groups, render.FundingGroup{Group: g, Label: ft.Label})
	}
	if ed := c.editor; ed != nil && ed.account == account {
		ft, _ := c.registry.FundingType(string(ed.typ))
		panel.Editor = &render.Editor{
			Type:   ed.typ,
			Index:  ed.index,
			Label:  ft.Label,
			Fields: ft.Fields,
			Values: ed.values,
			Error:  ed.err,
		}
	}
	if pr := c.pending; pr != nil && pr.account == account {
		panel.Pending = &render.Pending{
			Type:  pr.removal.Type,
			Index: pr.removal.Index,
			Name:  pr.removal.Instance.Name,
		}
	}
	return panel
}
