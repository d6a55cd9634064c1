package onboarding

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/matthewbaird/onboarding/internal/event"
	"github.com/matthewbaird/onboarding/internal/funding"
	"github.com/matthewbaird/onboarding/internal/types"
)

// NewInstance is the editor index of an instance not yet added.
const NewInstance = -1

// fundingAccount returns the account whose funding section is selected.
func (c *Controller) fundingAccount() (types.EntityRef, error) {
	if c.selection == nil {
		return types.EntityRef{}, ErrNoSelection
	}
	if c.selection.Section != types.SectionFunding {
		return types.EntityRef{}, fmt.Errorf("%w: %s selected", ErrNotFunding, c.selection)
	}
	if c.mode == types.ModeReview {
		return types.EntityRef{}, ErrReadOnly
	}
	return c.selection.Entity(), nil
}

// OpenFundingEditor opens the editor overlay for a new instance (index
// NewInstance) or an existing one. A pending removal is cancelled first.
func (c *Controller) OpenFundingEditor(ctx context.Context, t funding.Type, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openEditorLocked(ctx, t, index)
}

func (c *Controller) openEditorLocked(_ context.Context, t funding.Type, index int) error {
	account, err := c.fundingAccount()
	if err != nil {
		return err
	}
	if _, err := funding.ParseType(string(t)); err != nil {
		return err
	}
	coll := c.collection(account)

	values := map[string]string{}
	if index == NewInstance {
		switch {
		case coll.Total() >= funding.MaxTotal:
			c.notifier.Warning(fmt.Sprintf("An account can hold at most %d funding instances", funding.MaxTotal))
			return funding.ErrTotalCapacity
		case coll.Count(t) >= funding.MaxPerType:
			c.notifier.Warning(fmt.Sprintf("At most %d instances of this type", funding.MaxPerType))
			return funding.ErrTypeCapacity
		}
	} else {
		in, err := coll.Get(t, index)
		if err != nil {
			return err
		}
		values = maps.Clone(in.Fields)
		values["name"] = in.Name
	}

	c.closeOverlays()
	c.editor = &editor{account: account, typ: t, index: index, values: values}
	return nil
}

// SubmitFundingEditor adds or updates the instance the editor is open on.
// fields are merged over the editor's values; see FundingSubmit. On failure
// the editor stays open showing the error.
func (c *Controller) SubmitFundingEditor(ctx context.Context, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitEditorLocked(ctx, fields)
}

func (c *Controller) submitEditorLocked(ctx context.Context, fields map[string]string) error {
	if c.editor == nil {
		return ErrNoEditor
	}
	ed := c.editor
	maps.Copy(ed.values, fields)
	coll := c.collection(ed.account)

	var (
		in  funding.Instance
		err error
	)
	if ed.index == NewInstance {
		in, err = coll.Add(ed.typ, ed.values)
	} else {
		in, err = coll.Update(ed.typ, ed.index, ed.values)
	}
	if err != nil {
		ed.err = err.Error()
		if errors.Is(err, funding.ErrCapacity) {
			c.notifier.Warning(err.Error())
		}
		return err
	}

	index := ed.index
	p := event.FundingPayload{
		Account:    ed.account,
		Type:       string(in.Type),
		InstanceID: in.ID,
		Name:       in.Name,
		Details:    in.Details,
	}
	if index == NewInstance {
		p.Index = coll.Count(ed.typ) - 1
		c.record(ctx, event.NewFundingAdded(c.session, p))
		c.notifier.Success(fmt.Sprintf("%s added", in.Name))
	} else {
		p.Index = index
		c.record(ctx, event.NewFundingUpdated(c.session, p))
		c.notifier.Success(fmt.Sprintf("%s updated", in.Name))
	}
	c.editor = nil
	return nil
}

// CloseFundingEditor discards the editor overlay, if open.
func (c *Controller) CloseFundingEditor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor = nil
}

// RequestFundingRemoval stages the removal of one instance. Nothing changes
// until ConfirmFundingRemoval.
func (c *Controller) RequestFundingRemoval(ctx context.Context, t funding.Type, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestRemovalLocked(ctx, t, index)
}

func (c *Controller) requestRemovalLocked(_ context.Context, t funding.Type, index int) error {
	account, err := c.fundingAccount()
	if err != nil {
		return err
	}
	p, err := c.collection(account).RequestRemoval(t, index)
	if err != nil {
		return err
	}
	c.closeOverlays()
	c.pending = &pendingRemoval{account: account, removal: p}
	return nil
}

// ConfirmFundingRemoval commits (confirm) or cancels the staged removal.
func (c *Controller) ConfirmFundingRemoval(ctx context.Context, confirm bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmRemovalLocked(ctx, confirm)
}

func (c *Controller) confirmRemovalLocked(ctx context.Context, confirm bool) error {
	if c.pending == nil {
		return ErrNoPendingRemoval
	}
	pr := c.pending
	c.pending = nil
	if !confirm {
		return pr.removal.Cancel()
	}
	if err := pr.removal.Commit(); err != nil {
		c.notifier.Error("Removal failed")
		return err
	}
	in := pr.removal.Instance
	c.record(ctx, event.NewFundingRemoved(c.session, event.FundingPayload{
		Account:    pr.account,
		Type:       string(in.Type),
		Index:      pr.removal.Index,
		InstanceID: in.ID,
		Name:       in.Name,
		Details:    in.Details,
	}))
	c.notifier.Success(fmt.Sprintf("%s removed", in.Name))
	return nil
}
