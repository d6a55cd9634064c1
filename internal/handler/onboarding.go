package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/onboarding/internal/catalog"
	"github.com/matthewbaird/onboarding/internal/onboarding"
	"github.com/matthewbaird/onboarding/internal/render"
	"github.com/matthewbaird/onboarding/internal/sections"
	"github.com/matthewbaird/onboarding/internal/session"
	"github.com/matthewbaird/onboarding/internal/types"
)

// OnboardingHandler serves read-only views of the catalog, the section
// registry and live session status.
type OnboardingHandler struct {
	catalog  *catalog.Catalog
	registry *sections.Registry
	sessions *session.Manager
}

// NewOnboardingHandler creates a new OnboardingHandler.
func NewOnboardingHandler(c *catalog.Catalog, r *sections.Registry, sessions *session.Manager) *OnboardingHandler {
	return &OnboardingHandler{catalog: c, registry: r, sessions: sessions}
}

type sectionsResponse struct {
	Kinds    map[types.Kind][]types.Section `json:"kinds"`
	Sections []*sections.Definition         `json:"sections"`
}

// HandleListSections returns the section registry.
// GET /api/onboarding/sections
func (h *OnboardingHandler) HandleListSections(w http.ResponseWriter, r *http.Request) {
	resp := sectionsResponse{
		Kinds:    make(map[types.Kind][]types.Section, len(types.AllKinds)),
		Sections: h.registry.Definitions(),
	}
	for _, k := range types.AllKinds {
		resp.Kinds[k] = h.registry.Sections(k)
	}
	writeJSON(w, http.StatusOK, resp)
}

type entitySummary struct {
	Ref         types.EntityRef `json:"ref"`
	DisplayName string          `json:"display_name"`
	Subtype     string          `json:"subtype"`
	Sections    []types.Section `json:"sections"`
}

// HandleListEntities returns members then accounts in sidebar order.
// GET /api/onboarding/entities
func (h *OnboardingHandler) HandleListEntities(w http.ResponseWriter, r *http.Request) {
	refs := h.catalog.All()
	if k := r.URL.Query().Get("kind"); k != "" {
		kind, err := types.ParseKind(k)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_KIND", err.Error())
			return
		}
		if kind == types.KindMember {
			refs = h.catalog.Members()
		} else {
			refs = h.catalog.Accounts()
		}
	}

	out := make([]entitySummary, 0, len(refs))
	for _, ref := range refs {
		e, err := h.catalog.Entity(ref)
		if err != nil {
			domainErrorToHTTP(w, err)
			return
		}
		out = append(out, entitySummary{
			Ref:         e.Ref,
			DisplayName: e.DisplayName,
			Subtype:     e.Subtype,
			Sections:    h.registry.Sections(ref.Kind),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": out})
}

// HandleGetEntity returns one entity with its attributes. Sensitive fields
// are masked.
// GET /api/onboarding/entities/{kind}/{id}
func (h *OnboardingHandler) HandleGetEntity(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseEntityRef(w, r)
	if !ok {
		return
	}
	e, err := h.catalog.Entity(ref)
	if err != nil {
		domainErrorToHTTP(w, err)
		return
	}
	for _, s := range h.registry.Sections(ref.Kind) {
		def, err := h.registry.Definition(s)
		if err != nil {
			continue
		}
		for _, f := range def.Fields {
			if v, ok := e.Attributes[f.Name]; ok && f.Sensitive {
				e.Attributes[f.Name] = render.Display(f, v)
			}
		}
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleGetSessionStatus returns the completion sidebar of a live session.
// GET /api/onboarding/sessions/{id}/status
func (h *OnboardingHandler) HandleGetSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s := h.sessions.Get(id)
	if s == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "session not found: "+id)
		return
	}
	ctrl := s.Controller
	resp := struct {
		Session   string                     `json:"session"`
		Mode      types.Mode                 `json:"mode"`
		Selection *types.SectionRef          `json:"selection,omitempty"`
		Entities  []onboarding.SidebarEntity `json:"entities"`
	}{
		Session:  s.ID,
		Mode:     ctrl.Mode(),
		Entities: ctrl.Status(),
	}
	if sel, ok := ctrl.Selection(); ok {
		resp.Selection = &sel
	}
	writeJSON(w, http.StatusOK, resp)
}
