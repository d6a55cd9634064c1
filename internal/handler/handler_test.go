package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/onboarding/internal/activity"
	"github.com/matthewbaird/onboarding/internal/catalog"
	"github.com/matthewbaird/onboarding/internal/notify"
	"github.com/matthewbaird/onboarding/internal/onboarding"
	"github.com/matthewbaird/onboarding/internal/render"
	"github.com/matthewbaird/onboarding/internal/sections"
	"github.com/matthewbaird/onboarding/internal/session"
	"github.com/matthewbaird/onboarding/internal/signals"
	"github.com/matthewbaird/onboarding/internal/types"
	"github.com/matthewbaird/onboarding/internal/validate"
)

var (
	registry = sections.MustLoad()
	john     = types.EntityRef{Kind: types.KindMember, ID: "john-smith"}
)

type fixture struct {
	router   chi.Router
	sessions *session.Manager
	activity *activity.MemoryStore
}

func newFixture(t *testing.T, cat *catalog.Catalog) *fixture {
	t.Helper()
	if cat == nil {
		cat = catalog.Demo()
	}
	v, err := validate.New(registry)
	require.NoError(t, err)
	rnd := render.MustNew()
	sessions := session.NewManager(time.Hour, time.Hour, func(id, _ string, _ notify.Sender) (*onboarding.Controller, error) {
		return onboarding.New(onboarding.Config{
			Session:   id,
			Catalog:   cat,
			Registry:  registry,
			Renderer:  rnd,
			Validator: v,
		})
	})
	acts := activity.NewMemoryStore(0)

	oh := NewOnboardingHandler(cat, registry, sessions)
	ah := NewActivityHandler(acts, signals.MustNew(signals.DefaultRules))
	r := chi.NewRouter()
	r.Get("/sections", oh.HandleListSections)
	r.Get("/entities", oh.HandleListEntities)
	r.Get("/entities/{kind}/{id}", oh.HandleGetEntity)
	r.Get("/entities/{kind}/{id}/activity", ah.HandleGetEntityActivity)
	r.Get("/entities/{kind}/{id}/summary", ah.HandleGetEntitySummary)
	r.Get("/sessions/{id}/status", oh.HandleGetSessionStatus)
	return &fixture{router: r, sessions: sessions, activity: acts}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestListSections(t *testing.T) {
	f := newFixture(t, nil)
	var resp struct {
		Kinds    map[types.Kind][]types.Section `json:"kinds"`
		Sections []struct {
			Section types.Section `json:"section"`
			Fields  []struct {
				Name     string `json:"name"`
				Required bool   `json:"required"`
			} `json:"fields"`
		} `json:"sections"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/sections", &resp))
	assert.Equal(t, []types.Section{types.SectionOwnerDetails, types.SectionFirmDetails}, resp.Kinds[types.KindMember])
	assert.Equal(t, []types.Section{types.SectionAccountSetup, types.SectionFunding, types.SectionFirmDetails}, resp.Kinds[types.KindAccount])
	assert.Len(t, resp.Sections, 4)
}

func TestListEntities(t *testing.T) {
	f := newFixture(t, nil)
	var resp struct {
		Entities []entitySummary `json:"entities"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/entities", &resp))
	require.Len(t, resp.Entities, 6)
	assert.Equal(t, john, resp.Entities[0].Ref)
	assert.Equal(t, "John Smith", resp.Entities[0].DisplayName)

	require.Equal(t, http.StatusOK, f.get(t, "/entities?kind=account", &resp))
	require.Len(t, resp.Entities, 3)
	for _, e := range resp.Entities {
		assert.Equal(t, types.KindAccount, e.Ref.Kind)
		assert.Equal(t, []types.Section{types.SectionAccountSetup, types.SectionFunding, types.SectionFirmDetails}, e.Sections)
	}

	var eb errorBody
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/entities?kind=robot", &eb))
	assert.Equal(t, "INVALID_KIND", eb.Code)
}

func TestGetEntity(t *testing.T) {
	f := newFixture(t, nil)
	var e catalog.Entity
	require.Equal(t, http.StatusOK, f.get(t, "/entities/member/john-smith", &e))
	assert.Equal(t, "John", e.Attributes["firstName"])

	var eb errorBody
	assert.Equal(t, http.StatusNotFound, f.get(t, "/entities/member/nobody", &eb))
	assert.Equal(t, "NOT_FOUND", eb.Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/entities/robot/john-smith", &eb))
}

func TestGetEntity_MasksSensitive(t *testing.T) {
	cat, err := catalog.New([]catalog.Entity{{
		Ref:         john,
		DisplayName: "John Smith",
		Attributes:  map[string]string{"firstName": "John", "ssn": "123-45-6789"},
	}})
	require.NoError(t, err)
	f := newFixture(t, cat)

	var e catalog.Entity
	require.Equal(t, http.StatusOK, f.get(t, "/entities/member/john-smith", &e))
	assert.Equal(t, "•••••••6789", e.Attributes["ssn"])
	assert.Equal(t, "John", e.Attributes["firstName"])
}

func TestGetEntityActivity(t *testing.T) {
	f := newFixture(t, nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var entries []activity.Entry
	for i, w := range []string{"info", "minor", "major"} {
		entries = append(entries, activity.Entry{
			EventID:    string(rune('a' + i)),
			EventType:  "SectionStatusChanged",
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
			Entity:     john,
			Role:       "subject",
			Summary:    "owner-details marked complete",
			Category:   "completion",
			Weight:     w,
		})
	}
	require.NoError(t, f.activity.WriteEntries(context.Background(), entries))

	var resp struct {
		Activities []activity.Entry `json:"activities"`
		NextCursor string           `json:"next_cursor"`
		TotalCount int              `json:"total_count"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/entities/member/john-smith/activity", &resp))
	require.Len(t, resp.Activities, 3)
	assert.Equal(t, "c", resp.Activities[0].EventID)
	assert.Equal(t, 3, resp.TotalCount)

	require.Equal(t, http.StatusOK, f.get(t, "/entities/member/john-smith/activity?min_weight=minor&limit=1", &resp))
	require.Len(t, resp.Activities, 1)
	assert.Equal(t, "c", resp.Activities[0].EventID)
	assert.NotEmpty(t, resp.NextCursor)

	require.Equal(t, http.StatusOK, f.get(t, "/entities/account/joint-account/activity", &resp))
	assert.Empty(t, resp.Activities)
	assert.NotNil(t, resp.Activities)

	var eb errorBody
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/entities/member/john-smith/activity?since=yesterday", &eb))
}

func TestGetEntitySummary(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now()
	require.NoError(t, f.activity.WriteEntries(context.Background(), []activity.Entry{{
		EventID:    "a",
		EventType:  "section_status_changed",
		OccurredAt: now.Add(-time.Minute),
		Entity:     john,
		Role:       "subject",
		Category:   "completion",
		Weight:     "minor",
		Payload:    json.RawMessage(`{"section":{"kind":"member","entity_id":"john-smith","section":"owner-details"},"complete":true}`),
	}}))

	var s signals.Summary
	require.Equal(t, http.StatusOK, f.get(t, "/entities/member/john-smith/summary", &s))
	assert.Equal(t, john, s.Entity)
	assert.Equal(t, "progressing", s.Progress)
	assert.Equal(t, []types.Section{types.SectionOwnerDetails}, s.Completed)
	assert.Equal(t, 1, s.Categories["completion"].Count)
	assert.Empty(t, s.Attention)

	var eb errorBody
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/entities/member/john-smith/summary?since=later", &eb))
}

func TestGetSessionStatus(t *testing.T) {
	f := newFixture(t, nil)
	s, err := f.sessions.Create("browser-1", nil)
	require.NoError(t, err)
	require.NoError(t, s.Controller.SelectSection(context.Background(), john.Section(types.SectionOwnerDetails)))

	var resp struct {
		Session   string                     `json:"session"`
		Mode      types.Mode                 `json:"mode"`
		Selection *types.SectionRef          `json:"selection"`
		Entities  []onboarding.SidebarEntity `json:"entities"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/sessions/"+s.ID+"/status", &resp))
	assert.Equal(t, s.ID, resp.Session)
	assert.Equal(t, types.ModeEdit, resp.Mode)
	require.NotNil(t, resp.Selection)
	assert.Equal(t, types.SectionOwnerDetails, resp.Selection.Section)
	assert.Len(t, resp.Entities, 6)

	var eb errorBody
	assert.Equal(t, http.StatusNotFound, f.get(t, "/sessions/missing/status", &eb))
}
