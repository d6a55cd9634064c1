package onboarding

import (
	"context"
	"errors"
	"fmt"

	"github.com/matthewbaird/onboarding/internal/funding"
	"github.com/matthewbaird/onboarding/internal/types"
)

// Event is one UI interaction.
type Event interface {
	eventName() string
}

type (
	// Select picks an entity section.
	Select struct{ Ref types.SectionRef }
	// ToggleMode flips edit/review.
	ToggleMode struct{}
	// Edit types into a field. Checkboxes take "true" or "".
	Edit struct{ Field, Value string }
	// Save validates and writes the snapshot now.
	Save struct{}
	// Restore reapplies the persisted snapshot.
	Restore struct{}
	// Refresh returns the current view unchanged.
	Refresh struct{}
	// FundingOpen opens the editor on an instance, or NewInstance.
	FundingOpen struct {
		Type  funding.Type
		Index int
	}
	// FundingSubmit adds or updates the edited instance. Fields are merged
	// over the editor's values: an omitted field keeps its value and a field
	// sent as "" clears it, so clients submit every field of the editor form.
	FundingSubmit struct{ Fields map[string]string }
	// FundingClose discards the editor.
	FundingClose struct{}
	// FundingRemove stages a removal.
	FundingRemove struct {
		Type  funding.Type
		Index int
	}
	// FundingConfirm commits or cancels the staged removal.
	FundingConfirm struct{ Confirm bool }
)

func (Select) eventName() string         { return "select" }
func (ToggleMode) eventName() string     { return "toggle_mode" }
func (Edit) eventName() string           { return "edit" }
func (Save) eventName() string           { return "save" }
func (Restore) eventName() string        { return "restore" }
func (Refresh) eventName() string        { return "refresh" }
func (FundingOpen) eventName() string    { return "funding_open" }
func (FundingSubmit) eventName() string  { return "funding_submit" }
func (FundingClose) eventName() string   { return "funding_close" }
func (FundingRemove) eventName() string  { return "funding_remove" }
func (FundingConfirm) eventName() string { return "funding_confirm" }

// ErrUnknownEvent is returned by Dispatch for event types it does not handle.
var ErrUnknownEvent = errors.New("unknown event")

// Dispatch applies one event and returns the resulting view. The view is
// returned even when the event fails, so the client can show the state the
// failure left behind.
func (c *Controller) Dispatch(ctx context.Context, ev Event) (*View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = nil

	var err error
	switch e := ev.(type) {
	case Select:
		err = c.selectLocked(ctx, e.Ref)
	case ToggleMode:
		err = c.toggleLocked(ctx)
	case Edit:
		err = c.editLocked(ctx, e.Field, e.Value)
	case Save:
		err = c.saveLocked(ctx)
	case Restore:
		_, err = c.restoreLocked(ctx)
	case Refresh:
	case FundingOpen:
		err = c.openEditorLocked(ctx, e.Type, e.Index)
	case FundingSubmit:
		err = c.submitEditorLocked(ctx, e.Fields)
	case FundingClose:
		c.editor = nil
	case FundingRemove:
		err = c.requestRemovalLocked(ctx, e.Type, e.Index)
	case FundingConfirm:
		err = c.confirmRemovalLocked(ctx, e.Confirm)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	if err != nil && ev != nil {
		err = fmt.Errorf("%s: %w", ev.eventName(), err)
	}

	v, verr := c.viewLocked()
	c.changes = nil
	if err == nil {
		err = verr
	}
	return v, err
}
