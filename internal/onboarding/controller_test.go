package onboarding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/onboarding/internal/activity"
	"github.com/matthewbaird/onboarding/internal/catalog"
	"github.com/matthewbaird/onboarding/internal/event"
	"github.com/matthewbaird/onboarding/internal/form"
	"github.com/matthewbaird/onboarding/internal/funding"
	"github.com/matthewbaird/onboarding/internal/persist"
	"github.com/matthewbaird/onboarding/internal/render"
	"github.com/matthewbaird/onboarding/internal/sections"
	"github.com/matthewbaird/onboarding/internal/types"
	"github.com/matthewbaird/onboarding/internal/validate"
)

var (
	registry = sections.MustLoad()
	renderer = render.MustNew()

	john         = types.EntityRef{Kind: types.KindMember, ID: "john-smith"}
	johnOwner    = john.Section(types.SectionOwnerDetails)
	johnFirm     = john.Section(types.SectionFirmDetails)
	joint        = types.EntityRef{Kind: types.KindAccount, ID: "joint-account"}
	jointFunding = joint.Section(types.SectionFunding)
	jointSetup   = joint.Section(types.SectionAccountSetup)
)

type harness struct {
	*Controller
	store    *persist.MemoryStore
	activity *activity.MemoryStore
}

func newHarness(t *testing.T, store *persist.MemoryStore, debounce time.Duration) *harness {
	t.Helper()
	v, err := validate.New(registry)
	require.NoError(t, err)
	if store == nil {
		store = persist.NewMemoryStore()
	}
	acts := activity.NewMemoryStore(0)
	c, err := New(Config{
		Session:      "test-session",
		Catalog:      catalog.Demo(),
		Registry:     registry,
		Renderer:     renderer,
		Validator:    v,
		Store:        store,
		StorageKey:   persist.KeyFor("test"),
		SaveDebounce: debounce,
		Recorder:     event.NewActivityRecorder(acts),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(context.Background()) })
	return &harness{Controller: c, store: store, activity: acts}
}

func dispatch(t *testing.T, c *Controller, ev Event) *View {
	t.Helper()
	v, err := c.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	require.NotNil(t, v)
	return v
}

func sidebarRow(v *View, ref types.EntityRef) SidebarEntity {
	for _, row := range v.Sidebar {
		if row.Ref == ref {
			return row
		}
	}
	return SidebarEntity{}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestJohnSmithOwnerDetails(t *testing.T) {
	h := newHarness(t, nil, time.Hour)

	v := dispatch(t, h.Controller, Select{Ref: johnOwner})
	require.NotNil(t, v.Selection)
	assert.Equal(t, johnOwner, *v.Selection)
	assert.False(t, v.Complete, "seed data has no SSN")
	assert.Equal(t, []string{"ssn"}, v.Missing)
	require.NotNil(t, v.Panel)
	assert.Contains(t, v.Panel.FieldIDs, "ssn")
	assert.Contains(t, v.Panel.HTML, `value="John"`)

	v = dispatch(t, h.Controller, Edit{Field: "ssn", Value: "123-45-6789"})
	assert.True(t, v.Complete)
	assert.Empty(t, v.Missing)
	require.Len(t, v.Changes, 1)
	assert.Equal(t, johnOwner, v.Changes[0].Ref)
	assert.True(t, v.Changes[0].SectionComplete)
	assert.False(t, v.Changes[0].EntityComplete, "firm details still incomplete")

	row := sidebarRow(v, john)
	assert.Equal(t, "John Smith", row.Name)
	assert.False(t, row.Complete)

	entries, _, _, err := h.activity.QueryByEntity(context.Background(), john, activity.DefaultQueryOptions())
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "owner-details marked complete", entries[0].Summary)
}

func completeFirmDetails(t *testing.T, c *Controller) *View {
	t.Helper()
	var v *View
	for _, e := range []Edit{
		{Field: "employmentStatus", Value: "employed"},
		{Field: "annualIncome", Value: "100k-250k"},
		{Field: "netWorth", Value: "500k-1m"},
		{Field: "investmentExperience", Value: "good"},
		{Field: "riskTolerance", Value: "moderate"},
		{Field: "agreeToTerms", Value: "true"},
	} {
		v = dispatch(t, c, e)
	}
	return v
}

func TestAggregateFollowsSections(t *testing.T) {
	h := newHarness(t, nil, time.Hour)

	dispatch(t, h.Controller, Select{Ref: johnOwner})
	dispatch(t, h.Controller, Edit{Field: "ssn", Value: "123-45-6789"})
	dispatch(t, h.Controller, Select{Ref: johnFirm})
	v := completeFirmDetails(t, h.Controller)

	assert.True(t, v.Complete)
	require.Len(t, v.Changes, 1)
	assert.True(t, v.Changes[0].EntityComplete)
	assert.True(t, sidebarRow(v, john).Complete)

	v = dispatch(t, h.Controller, Edit{Field: "agreeToTerms", Value: ""})
	assert.False(t, v.Complete)
	assert.False(t, sidebarRow(v, john).Complete, "aggregate drops in the same event")
}

func TestNavigationKeepsSessionEdits(t *testing.T) {
	h := newHarness(t, nil, time.Hour)

	dispatch(t, h.Controller, Select{Ref: johnOwner})
	dispatch(t, h.Controller, Edit{Field: "ssn", Value: "123-45-6789"})
	dispatch(t, h.Controller, Select{Ref: johnFirm})
	v := dispatch(t, h.Controller, Select{Ref: johnOwner})

	assert.True(t, v.Complete)
	assert.Equal(t, "123-45-6789", h.Values()["ssn"])
}

func TestModeRoundTripKeepsValues(t *testing.T) {
	h := newHarness(t, nil, time.Hour)

	dispatch(t, h.Controller, Select{Ref: johnOwner})
	dispatch(t, h.Controller, Edit{Field: "firstName", Value: "Johnny"})
	dispatch(t, h.Controller, Edit{Field: "middleName", Value: ""})
	before := h.Values()

	v := dispatch(t, h.Controller, ToggleMode{})
	assert.Equal(t, types.ModeReview, v.Mode)
	require.NotNil(t, v.Panel)
	assert.Contains(t, v.Panel.HTML, `data-mode="review"`)
	assert.Contains(t, v.Panel.HTML, "Johnny")

	v = dispatch(t, h.Controller, ToggleMode{})
	assert.Equal(t, types.ModeEdit, v.Mode)
	assert.Equal(t, before, h.Values())
}

func TestToggleWithoutSelectionReviewsFirstMember(t *testing.T) {
	h := newHarness(t, nil, time.Hour)

	v := dispatch(t, h.Controller, ToggleMode{})
	assert.Equal(t, types.ModeReview, v.Mode)
	require.NotNil(t, v.Selection)
	assert.Equal(t, johnOwner, *v.Selection)
}

func TestEditInReviewIsReadOnly(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: johnOwner})
	dispatch(t, h.Controller, ToggleMode{})

	_, err := h.Dispatch(context.Background(), Edit{Field: "firstName", Value: "X"})
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.Equal(t, "John", h.Values()["firstName"])
}

func TestEditErrors(t *testing.T) {
	h := newHarness(t, nil, time.Hour)

	_, err := h.Dispatch(context.Background(), Edit{Field: "firstName", Value: "X"})
	assert.ErrorIs(t, err, ErrNoSelection)

	dispatch(t, h.Controller, Select{Ref: johnOwner})
	v, err := h.Dispatch(context.Background(), Edit{Field: "favouriteColour", Value: "blue"})
	assert.ErrorIs(t, err, form.ErrUnknownField)
	require.NotNil(t, v, "the view is returned with the error")
	assert.Equal(t, johnOwner, *v.Selection)

	_, err = h.Dispatch(context.Background(), Edit{Field: "citizenship", Value: "martian"})
	assert.ErrorIs(t, err, form.ErrInvalidOption)
}

func TestSelectRejectsUnknownTargets(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: johnOwner})

	_, err := h.Dispatch(context.Background(), Select{Ref: types.SectionRef{Kind: types.KindMember, EntityID: "nobody", Section: types.SectionOwnerDetails}})
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = h.Dispatch(context.Background(), Select{Ref: john.Section(types.SectionFunding)})
	assert.ErrorIs(t, err, sections.ErrUnknownSection)

	sel, ok := h.Selection()
	require.True(t, ok)
	assert.Equal(t, johnOwner, sel)
}

func addFunding(t *testing.T, c *Controller, typ funding.Type, name string, fields map[string]string) error {
	t.Helper()
	if err := c.OpenFundingEditor(context.Background(), typ, NewInstance); err != nil {
		return err
	}
	if fields == nil {
		fields = map[string]string{}
	}
	fields["name"] = name
	return c.SubmitFundingEditor(context.Background(), fields)
}

func TestJointAccountFunding(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: jointFunding})

	for i := range funding.MaxPerType {
		require.NoError(t, addFunding(t, h.Controller, funding.TypeACH, fmt.Sprintf("Bank %d", i), map[string]string{
			"bankName":       "Chase",
			"transferAmount": "5000",
		}))
	}
	err := addFunding(t, h.Controller, funding.TypeACH, "Bank 5", nil)
	assert.ErrorIs(t, err, funding.ErrTypeCapacity)

	groups := h.Funding(joint)
	assert.Len(t, groups[1].Instances, funding.MaxPerType)
	assert.True(t, groups[1].Full)
	assert.Equal(t, "Chase • $5,000.00", groups[1].Instances[0].Details)

	v := dispatch(t, h.Controller, Refresh{})
	assert.Contains(t, v.Panel.HTML, "Bank 3")
	assert.Nil(t, v.Overlay)

	entries, _, total, err := h.activity.QueryByEntity(context.Background(), joint, activity.QueryOptions{Categories: []string{event.CategoryFunding}})
	require.NoError(t, err)
	assert.Equal(t, funding.MaxPerType, total)
	assert.Equal(t, "funding_added", entries[0].EventType)
}

func TestFundingTotalCapacity(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: jointFunding})

	for _, typ := range funding.Types {
		for i := range funding.MaxPerType {
			require.NoError(t, addFunding(t, h.Controller, typ, fmt.Sprintf("%s %d", typ, i), nil))
		}
	}
	err := addFunding(t, h.Controller, funding.TypeACAT, "one too many", nil)
	assert.ErrorIs(t, err, funding.ErrTotalCapacity)

	total := 0
	for _, g := range h.Funding(joint) {
		total += len(g.Instances)
	}
	assert.Equal(t, funding.MaxTotal, total)
}

func TestFundingBlankNameKeepsEditorOpen(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: jointFunding})
	dispatch(t, h.Controller, FundingOpen{Type: funding.TypeACAT, Index: NewInstance})

	v, err := h.Dispatch(context.Background(), FundingSubmit{Fields: map[string]string{"name": "  ", "deliveringFirm": "Vanguard"}})
	assert.ErrorIs(t, err, funding.ErrBlankName)
	require.NotNil(t, v.Overlay)
	assert.NotEmpty(t, v.Overlay.Error)
	assert.Contains(t, v.Panel.HTML, `value="Vanguard"`, "typed values survive the failed submit")

	v = dispatch(t, h.Controller, FundingSubmit{Fields: map[string]string{"name": "Old IRA"}})
	assert.Nil(t, v.Overlay)
	assert.Contains(t, v.Panel.HTML, "Old IRA")
}

func TestFundingUpdate(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: jointFunding})
	require.NoError(t, addFunding(t, h.Controller, funding.TypeACH, "Checking", map[string]string{"bankName": "Chase"}))
	before := h.Funding(joint)[1].Instances[0]

	dispatch(t, h.Controller, FundingOpen{Type: funding.TypeACH, Index: 0})
	dispatch(t, h.Controller, FundingSubmit{Fields: map[string]string{"bankName": "Ally"}})

	after := h.Funding(joint)[1].Instances[0]
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, "Checking", after.Name)
	assert.Equal(t, "Ally", after.Fields["bankName"])

	_, err := h.Dispatch(context.Background(), FundingOpen{Type: funding.TypeACH, Index: 3})
	assert.ErrorIs(t, err, funding.ErrNotFound)
}

func TestFundingSubmitClearsBlankedFields(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: jointFunding})
	require.NoError(t, addFunding(t, h.Controller, funding.TypeACH, "Checking", map[string]string{"bankName": "Chase", "transferAmount": "5000"}))

	dispatch(t, h.Controller, FundingOpen{Type: funding.TypeACH, Index: 0})
	dispatch(t, h.Controller, FundingSubmit{Fields: map[string]string{"name": "Checking", "bankName": "Chase", "transferAmount": ""}})

	after := h.Funding(joint)[1].Instances[0]
	assert.Empty(t, after.Fields["transferAmount"])
	assert.Equal(t, "Chase", after.Details)
}

func TestFundingRemovalCancelled(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: jointFunding})
	require.NoError(t, addFunding(t, h.Controller, funding.TypeACH, "First", nil))
	require.NoError(t, addFunding(t, h.Controller, funding.TypeACH, "Second", nil))

	v := dispatch(t, h.Controller, FundingRemove{Type: funding.TypeACH, Index: 0})
	require.NotNil(t, v.Confirm)
	assert.Equal(t, "First", v.Confirm.Name)
	assert.Len(t, h.Funding(joint)[1].Instances, 2, "nothing removed before confirmation")

	v = dispatch(t, h.Controller, FundingConfirm{Confirm: false})
	assert.Nil(t, v.Confirm)
	list := h.Funding(joint)[1].Instances
	require.Len(t, list, 2)
	assert.Equal(t, "First", list[0].Name)
	assert.Equal(t, "Second", list[1].Name)

	_, err := h.Dispatch(context.Background(), FundingConfirm{Confirm: true})
	assert.ErrorIs(t, err, ErrNoPendingRemoval)
}

func TestFundingRemovalConfirmed(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: jointFunding})
	require.NoError(t, addFunding(t, h.Controller, funding.TypeACH, "First", nil))
	require.NoError(t, addFunding(t, h.Controller, funding.TypeACH, "Second", nil))

	dispatch(t, h.Controller, FundingRemove{Type: funding.TypeACH, Index: 0})
	dispatch(t, h.Controller, FundingConfirm{Confirm: true})

	list := h.Funding(joint)[1].Instances
	require.Len(t, list, 1)
	assert.Equal(t, "Second", list[0].Name)
}

func TestNavigationClosesOverlays(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: jointFunding})
	require.NoError(t, addFunding(t, h.Controller, funding.TypeACH, "Checking", nil))

	v := dispatch(t, h.Controller, FundingOpen{Type: funding.TypeACAT, Index: NewInstance})
	require.NotNil(t, v.Overlay)
	dispatch(t, h.Controller, Select{Ref: jointSetup})
	v = dispatch(t, h.Controller, Select{Ref: jointFunding})
	assert.Nil(t, v.Overlay)
	assert.NotContains(t, v.Panel.HTML, "funding-editor")

	dispatch(t, h.Controller, FundingRemove{Type: funding.TypeACH, Index: 0})
	dispatch(t, h.Controller, Select{Ref: johnOwner})
	v = dispatch(t, h.Controller, Select{Ref: jointFunding})
	assert.Nil(t, v.Confirm)
	assert.Len(t, h.Funding(joint)[1].Instances, 1, "navigation cancels the removal")

	_, err := h.Dispatch(context.Background(), FundingConfirm{Confirm: true})
	assert.ErrorIs(t, err, ErrNoPendingRemoval)
}

func TestFundingOutsideFundingSection(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: jointSetup})

	_, err := h.Dispatch(context.Background(), FundingOpen{Type: funding.TypeACH, Index: NewInstance})
	assert.ErrorIs(t, err, ErrNotFunding)
	_, err = h.Dispatch(context.Background(), FundingSubmit{})
	assert.ErrorIs(t, err, ErrNoEditor)
}

func TestSaveValidatesThenPersists(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	ctx := context.Background()
	dispatch(t, h.Controller, Select{Ref: johnOwner})
	dispatch(t, h.Controller, Edit{Field: "email", Value: "not-an-email"})

	v, err := h.Dispatch(ctx, Save{})
	assert.ErrorIs(t, err, validate.ErrInvalid)
	assert.Contains(t, v.Errors, "email")
	_, err = h.store.Load(ctx, persist.KeyFor("test"))
	assert.ErrorIs(t, err, persist.ErrNotFound, "nothing is written when validation fails")

	v = dispatch(t, h.Controller, Edit{Field: "email", Value: "john@example.com"})
	assert.NotContains(t, v.Errors, "email", "editing a field clears its message")
	dispatch(t, h.Controller, Save{})

	snap, err := h.store.Load(ctx, persist.KeyFor("test"))
	require.NoError(t, err)
	require.NotNil(t, snap.Selection)
	assert.Equal(t, johnOwner, *snap.Selection)
	assert.Equal(t, "john@example.com", snap.Fields["email"])
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	store := persist.NewMemoryStore()

	first := newHarness(t, store, time.Hour)
	dispatch(t, first.Controller, Select{Ref: johnOwner})
	dispatch(t, first.Controller, Edit{Field: "ssn", Value: "123-45-6789"})
	dispatch(t, first.Controller, Save{})

	second := newHarness(t, store, time.Hour)
	ok, err := second.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	v := dispatch(t, second.Controller, Refresh{})
	require.NotNil(t, v.Selection)
	assert.Equal(t, johnOwner, *v.Selection)
	assert.True(t, v.Complete)
	assert.Equal(t, "123-45-6789", second.Values()["ssn"])
}

func TestRestoreIgnoresMissingAndLegacySnapshots(t *testing.T) {
	store := persist.NewMemoryStore()
	h := newHarness(t, store, time.Hour)

	ok, err := h.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	store.PutRaw(persist.KeyFor("test"), []byte(`{"firstName":"John"}`))
	ok, err = h.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEditsAreSavedAfterDebounce(t *testing.T) {
	h := newHarness(t, nil, 20*time.Millisecond)
	dispatch(t, h.Controller, Select{Ref: johnOwner})
	dispatch(t, h.Controller, Edit{Field: "firstName", Value: "J"})
	dispatch(t, h.Controller, Edit{Field: "firstName", Value: "Jo"})

	require.Eventually(t, func() bool {
		snap, err := h.store.Load(context.Background(), persist.KeyFor("test"))
		return err == nil && snap.Fields["firstName"] == "Jo"
	}, time.Second, 5*time.Millisecond)
}

func TestCloseFlushesPendingEdits(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	dispatch(t, h.Controller, Select{Ref: johnOwner})
	dispatch(t, h.Controller, Edit{Field: "firstName", Value: "Jonathan"})

	require.NoError(t, h.Close(context.Background()))
	snap, err := h.store.Load(context.Background(), persist.KeyFor("test"))
	require.NoError(t, err)
	assert.Equal(t, "Jonathan", snap.Fields["firstName"])
}

type unknownEvent struct{}

func (unknownEvent) eventName() string { return "unknown" }

func TestDispatchUnknownEvent(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	_, err := h.Dispatch(context.Background(), unknownEvent{})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}
