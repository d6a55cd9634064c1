// Package onboarding is the per-session state machine behind the onboarding
// form: the single selected section, the global edit/review mode, the
// explicit form state, completion tracking and the funding sub-registry of
// each account.
//
// A Controller is driven one event at a time, either through the typed
// methods or through Dispatch. Every mutation happens under one mutex; the
// only asynchronous work is the debounced snapshot write and toast delivery.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/matthewbaird/onboarding/internal/catalog"
	"github.com/matthewbaird/onboarding/internal/completion"
	"github.com/matthewbaird/onboarding/internal/event"
	"github.com/matthewbaird/onboarding/internal/form"
	"github.com/matthewbaird/onboarding/internal/funding"
	"github.com/matthewbaird/onboarding/internal/notify"
	"github.com/matthewbaird/onboarding/internal/persist"
	"github.com/matthewbaird/onboarding/internal/render"
	"github.com/matthewbaird/onboarding/internal/sections"
	"github.com/matthewbaird/onboarding/internal/types"
	"github.com/matthewbaird/onboarding/internal/validate"
)

var (
	// ErrReadOnly is returned for edits while the form is in review mode.
	ErrReadOnly = errors.New("form is read-only in review mode")
	// ErrNoSelection is returned for operations that need a selected section.
	ErrNoSelection = errors.New("no section selected")
	// ErrNotFunding is returned for funding operations outside an account's
	// funding section.
	ErrNotFunding = errors.New("funding section not selected")
	// ErrNoEditor is returned when submitting without an open funding editor.
	ErrNoEditor = errors.New("no funding editor open")
	// ErrNoPendingRemoval is returned when confirming with nothing to confirm.
	ErrNoPendingRemoval = errors.New("no removal awaiting confirmation")
)

// Config wires a Controller to its collaborators. Catalog, Registry,
// Renderer and Validator are required.
type Config struct {
	Session   string
	Catalog   *catalog.Catalog
	Registry  *sections.Registry
	Renderer  render.Renderer
	Validator *validate.Validator

	// Store and StorageKey enable persistence. A nil Store disables it.
	Store        persist.Store
	StorageKey   string
	SaveDebounce time.Duration

	Recorder event.Recorder
	Notifier *notify.Notifier
}

// editor is the open funding-instance editor overlay.
type editor struct {
	account types.EntityRef
	typ     funding.Type
	index   int
	values  map[string]string
	err     string
}

// pendingRemoval is a funding removal awaiting confirmation.
type pendingRemoval struct {
	account types.EntityRef
	removal *funding.PendingRemoval
}

// Controller owns all mutable state of one onboarding session.
type Controller struct {
	session   string
	catalog   *catalog.Catalog
	registry  *sections.Registry
	renderer  render.Renderer
	validator *validate.Validator
	store     persist.Store
	debouncer *persist.Debouncer
	recorder  event.Recorder
	notifier  *notify.Notifier
	tracker   *completion.Tracker
	now       func() time.Time

	mu        sync.Mutex
	mode      types.Mode
	selection *types.SectionRef
	// cached is the selected entity's data snapshot: catalog attributes
	// overlaid with this session's edits. Replaced wholesale on select.
	cached  map[string]string
	form    *form.State
	drafts  map[types.SectionRef]map[string]string
	errors  map[string]string
	funds   map[types.EntityRef]*funding.Collection
	editor  *editor
	pending *pendingRemoval
	changes []completion.Change
}

// New creates a controller with nothing selected, in edit mode.
func New(cfg Config) (*Controller, error) {
	if cfg.Catalog == nil || cfg.Registry == nil || cfg.Renderer == nil || cfg.Validator == nil {
		return nil, errors.New("onboarding: catalog, registry, renderer and validator are required")
	}
	c := &Controller{
		session:   cfg.Session,
		catalog:   cfg.Catalog,
		registry:  cfg.Registry,
		renderer:  cfg.Renderer,
		validator: cfg.Validator,
		store:     cfg.Store,
		recorder:  cfg.Recorder,
		notifier:  cfg.Notifier,
		now:       time.Now,
		mode:      types.ModeEdit,
		drafts:    make(map[types.SectionRef]map[string]string),
		funds:     make(map[types.EntityRef]*funding.Collection),
	}
	if c.recorder == nil {
		c.recorder = event.Discard{}
	}
	if c.notifier == nil {
		c.notifier = notify.New(nil, 0)
	}
	c.tracker = completion.NewTracker(cfg.Registry, completion.ObserverFunc(func(ch completion.Change) {
		// Runs inside SetStatus, which is only called with mu held.
		c.changes = append(c.changes, ch)
	}))
	for _, ref := range cfg.Catalog.All() {
		c.tracker.Track(ref)
	}
	if cfg.Store != nil {
		key := cfg.StorageKey
		if key == "" {
			key = persist.StorageKey
		}
		c.debouncer = persist.NewDebouncer(cfg.Store, key, cfg.SaveDebounce)
		c.debouncer.OnSaved = func(snap persist.Snapshot, err error) {
			if err == nil && snap.Selection != nil {
				c.record(context.Background(), event.NewSnapshotSaved(c.session, event.SnapshotSavedPayload{
					Key:       key,
					Section:   *snap.Selection,
					Fields:    len(snap.Fields),
					Debounced: true,
				}))
			}
		}
	}
	return c, nil
}

// Session returns the session id the controller was created for.
func (c *Controller) Session() string { return c.session }

// Tracker exposes the completion table.
func (c *Controller) Tracker() *completion.Tracker { return c.tracker }

// Mode returns the current mode.
func (c *Controller) Mode() types.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Selection returns the selected section, if any.
func (c *Controller) Selection() (types.SectionRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selection == nil {
		return types.SectionRef{}, false
	}
	return *c.selection, true
}

// Values returns the live form values of the selected section.
func (c *Controller) Values() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.form == nil {
		return nil
	}
	return c.form.Values()
}

// SelectSection makes ref the active section. Any open funding editor or
// pending removal is discarded first. An unknown entity or a section the
// entity's kind does not have leaves the selection unchanged.
func (c *Controller) SelectSection(ctx context.Context, ref types.SectionRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectLocked(ctx, ref)
}

func (c *Controller) selectLocked(ctx context.Context, ref types.SectionRef) error {
	def, err := c.registry.Resolve(ref)
	if err != nil {
		return err
	}
	ent, err := c.catalog.Entity(ref.Entity())
	if err != nil {
		return err
	}

	c.closeOverlays()

	cached := ent.Attributes
	if cached == nil {
		cached = map[string]string{}
	}
	maps.Copy(cached, c.drafts[ref])

	c.selection = &ref
	c.cached = cached
	c.form = form.New(ref, def)
	c.form.Fill(cached)
	c.errors = nil

	c.recompute(ctx)
	return nil
}

// closeOverlays drops the funding editor and cancels a pending removal.
func (c *Controller) closeOverlays() {
	c.editor = nil
	if c.pending != nil {
		if err := c.pending.removal.Cancel(); err != nil && !errors.Is(err, funding.ErrResolved) {
			log.Printf("onboarding: %s: cancelling removal: %v", c.session, err)
		}
		c.pending = nil
	}
}

// ToggleMode flips between edit and review. Entering review merges the live
// form values over the cached entity data (form values win); returning to
// edit repopulates the form from that merged data. Entering review with no
// selection selects the first member's first section.
func (c *Controller) ToggleMode(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toggleLocked(ctx)
}

func (c *Controller) toggleLocked(ctx context.Context) error {
	if c.mode == types.ModeEdit {
		if c.selection == nil {
			ref, err := c.defaultSelection()
			if err != nil {
				return err
			}
			if err := c.selectLocked(ctx, ref); err != nil {
				return err
			}
		}
		c.closeOverlays()
		merged := maps.Clone(c.cached)
		maps.Copy(merged, c.form.Values())
		c.cached = merged
		c.mode = types.ModeReview
		return nil
	}

	c.mode = types.ModeEdit
	if c.form != nil {
		c.form.Replace(c.cached)
		c.recompute(ctx)
	}
	return nil
}

func (c *Controller) defaultSelection() (types.SectionRef, error) {
	members := c.catalog.Members()
	if len(members) == 0 {
		return types.SectionRef{}, fmt.Errorf("%w: no members to review", ErrNoSelection)
	}
	secs := c.registry.Sections(members[0].Kind)
	if len(secs) == 0 {
		return types.SectionRef{}, fmt.Errorf("%w: %s has no sections", ErrNoSelection, members[0])
	}
	return members[0].Section(secs[0]), nil
}

// EditField sets one field of the selected form, recomputes the section's
// completion and schedules a debounced save.
func (c *Controller) EditField(ctx context.Context, name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editLocked(ctx, name, value)
}

func (c *Controller) editLocked(ctx context.Context, name, value string) error {
	if c.form == nil {
		return ErrNoSelection
	}
	if c.mode == types.ModeReview {
		return ErrReadOnly
	}
	if err := c.form.Set(name, value); err != nil {
		return err
	}
	values := c.form.Values()
	c.drafts[*c.selection] = values
	maps.Copy(c.cached, values)
	delete(c.errors, name)

	c.recompute(ctx)
	if c.debouncer != nil {
		c.debouncer.Schedule(c.snapshotLocked())
	}
	return nil
}

// recompute re-runs the completeness check of the selected section and
// writes the result to the tracker.
func (c *Controller) recompute(ctx context.Context) {
	if c.selection == nil || c.form == nil {
		return
	}
	ref := *c.selection
	def := c.form.Definition()
	complete := completion.IsSectionComplete(def, c.form)
	before, seen := c.tracker.Status(ref)
	wasEntity := c.tracker.Aggregate(ref.Entity())

	ch, err := c.tracker.SetStatus(ref, complete)
	if err != nil {
		log.Printf("onboarding: %s: %v", c.session, err)
		return
	}
	if !seen || before != complete || wasEntity != ch.EntityComplete {
		c.record(ctx, event.NewSectionStatusChanged(c.session, event.SectionStatusChangedPayload{
			Section:        ref,
			Complete:       complete,
			EntityComplete: ch.EntityComplete,
			Missing:        completion.Missing(def, c.form),
		}))
	}
}

// valuesLocked is what is shown and saved for the selection: the live form
// in edit mode, the merged snapshot in review mode.
func (c *Controller) valuesLocked() map[string]string {
	if c.mode == types.ModeReview {
		out := make(map[string]string, len(c.form.Definition().Fields))
		for _, f := range c.form.Definition().Fields {
			out[f.Name] = c.cached[f.Name]
		}
		return out
	}
	return c.form.Values()
}

func (c *Controller) snapshotLocked() persist.Snapshot {
	sel := *c.selection
	return persist.Snapshot{
		Selection: &sel,
		Fields:    c.valuesLocked(),
		SavedAt:   c.now().UTC(),
	}
}

// Save validates the selected form and writes its snapshot immediately,
// replacing any pending debounced write. Validation failures leave all state
// unchanged apart from the field messages shown beside inputs.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked(ctx)
}

func (c *Controller) saveLocked(ctx context.Context) error {
	if c.form == nil {
		return ErrNoSelection
	}
	values := c.valuesLocked()
	if err := c.validator.Check(c.form.Definition(), values); err != nil {
		var verr *validate.Error
		if errors.As(err, &verr) {
			c.errors = maps.Clone(verr.Fields)
			c.notifier.Error(fmt.Sprintf("Please correct %d field(s)", len(verr.Fields)))
		}
		return err
	}
	c.errors = nil
	if c.debouncer == nil {
		c.notifier.Success("Saved")
		return nil
	}

	snap := c.snapshotLocked()
	if err := c.debouncer.Flush(ctx, snap); err != nil {
		c.notifier.Error("Saving failed")
		return fmt.Errorf("saving %s: %w", c.selection, err)
	}
	c.record(ctx, event.NewSnapshotSaved(c.session, event.SnapshotSavedPayload{
		Key:     c.debouncer.Key(),
		Section: *c.selection,
		Fields:  len(snap.Fields),
	}))
	c.notifier.Success("Saved")
	return nil
}

// Restore loads the persisted snapshot and reselects the section it was
// taken on with its values applied. It reports whether a snapshot was
// applied; missing or unreadable snapshots are not errors.
func (c *Controller) Restore(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restoreLocked(ctx)
}

func (c *Controller) restoreLocked(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	snap, err := c.store.Load(ctx, c.debouncer.Key())
	switch {
	case errors.Is(err, persist.ErrNotFound):
		return false, nil
	case errors.Is(err, persist.ErrIncompatible):
		log.Printf("onboarding: %s: ignoring stored snapshot: %v", c.session, err)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("restoring %s: %w", c.debouncer.Key(), err)
	}
	if snap.Selection == nil {
		return false, nil
	}
	ref := *snap.Selection
	if _, err := c.registry.Resolve(ref); err != nil {
		log.Printf("onboarding: %s: ignoring snapshot for %s: %v", c.session, ref, err)
		return false, nil
	}
	draft := maps.Clone(c.drafts[ref])
	if draft == nil {
		draft = map[string]string{}
	}
	maps.Copy(draft, snap.Fields)
	c.drafts[ref] = draft
	if err := c.selectLocked(ctx, ref); err != nil {
		return false, err
	}
	return true, nil
}

// Close writes any pending debounced snapshot and stops toast timers.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.notifier.Close()
	c.closeOverlays()
	if c.debouncer == nil || !c.debouncer.Pending() || c.selection == nil {
		return nil
	}
	return c.debouncer.Flush(ctx, c.snapshotLocked())
}

func (c *Controller) record(ctx context.Context, evt event.DomainEvent) {
	if err := c.recorder.Record(ctx, evt); err != nil {
		log.Printf("onboarding: %s: recording %s: %v", c.session, evt.EventType, err)
	}
}

// collection returns the funding collection of an account, creating it on
// first use.
func (c *Controller) collection(account types.EntityRef) *funding.Collection {
	coll, ok := c.funds[account]
	if !ok {
		coll = funding.NewCollection()
		c.funds[account] = coll
	}
	return coll
}

// Funding returns the funding groups of an account.
func (c *Controller) Funding(account types.EntityRef) []funding.Group {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection(account).Groups()
}

// missingRequired lists required fields the renderer did not echo back.
func missingRequired(def *sections.Definition, echoed []string) []string {
	var missing []string
	for _, name := range def.Required() {
		if !slices.Contains(echoed, name) {
			missing = append(missing, name)
		}
	}
	return missing
}
