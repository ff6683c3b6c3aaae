package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/ports"
)

var (
	_ ports.ChangeListener      = (*Engine)(nil)
	_ ports.TransactionListener = (*Engine)(nil)
)

// ComponentAdding implements ports.ChangeListener.
func (e *Engine) ComponentAdding(ctx context.Context, c domain.Component) error {
	e.pushIfNeeded(ctx, func() string { return fmt.Sprintf("Add %s", e.nameOf(c)) })
	for _, u := range e.units {
		u.componentAdding(c)
	}
	return nil
}

// ComponentAdded implements ports.ChangeListener.
func (e *Engine) ComponentAdded(ctx context.Context, c domain.Component) {
	for _, u := range e.units {
		u.componentAdded(ctx, c)
	}
	e.checkPopUnit(ctx, domain.PopNormal)
}

// ComponentChanging implements ports.ChangeListener.
func (e *Engine) ComponentChanging(ctx context.Context, c domain.Component, m domain.Member) error {
	e.pushIfNeeded(ctx, func() string {
		if m.IsWhole() {
			return fmt.Sprintf("Change %s", e.nameOf(c))
		}
		return fmt.Sprintf("Change %s.%s", e.nameOf(c), m.Name)
	})
	for _, u := range e.units {
		u.componentChanging(ctx, c, m)
	}
	return nil
}

// ComponentChanged implements ports.ChangeListener.
func (e *Engine) ComponentChanged(ctx context.Context, c domain.Component, m domain.Member, _, _ any) {
	for _, u := range e.units {
		u.componentChanged(c, m)
	}
	e.checkPopUnit(ctx, domain.PopNormal)
}

// ComponentRemoving implements ports.ChangeListener.
// Siblings referencing c are announced as changing first, so the references they hold
// are restored together with c.
func (e *Engine) ComponentRemoving(ctx context.Context, c domain.Component) error {
	e.pushIfNeeded(ctx, func() string { return fmt.Sprintf("Remove %s", e.nameOf(c)) })
	// A previous removal of c may have been vetoed after the references were captured.
	delete(e.removedRefs, c)
	if err := e.captureReferences(ctx, c); err != nil {
		e.checkPopUnit(ctx, domain.PopNormal)
		return err
	}
	for _, u := range e.units {
		u.componentRemoving(ctx, c)
	}
	return nil
}

// ComponentRemoved implements ports.ChangeListener.
func (e *Engine) ComponentRemoved(ctx context.Context, c domain.Component) {
	for _, u := range e.units {
		u.componentRemoved(c)
	}
	e.releaseReferences(ctx, c)
	e.checkPopUnit(ctx, domain.PopNormal)
}

// ComponentRename implements ports.ChangeListener.
func (e *Engine) ComponentRename(ctx context.Context, _ domain.Component, oldName, newName string) {
	e.pushIfNeeded(ctx, func() string { return fmt.Sprintf("Rename %s to %s", oldName, newName) })
	for _, u := range e.units {
		u.componentRename(ctx, oldName, newName)
	}
	e.checkPopUnit(ctx, domain.PopNormal)
}

// TransactionOpening implements ports.TransactionListener.
func (e *Engine) TransactionOpening(ctx context.Context) {
	if !e.canCreate() {
		e.frames = append(e.frames, false)
		return
	}
	e.frames = append(e.frames, true)
	e.push(ctx, newUnit(e, e.transactions.TransactionDescription(), true))
}

// TransactionClosed implements ports.TransactionListener.
func (e *Engine) TransactionClosed(ctx context.Context, committed, lastInStack bool) {
	if len(e.frames) == 0 {
		e.violation(ctx, "transaction closed without a matching open")
		return
	}
	pushed := e.frames[len(e.frames)-1]
	e.frames = e.frames[:len(e.frames)-1]
	if lastInStack {
		// Removals finish inside their transaction; anything left was vetoed.
		clear(e.removedRefs)
	}

	if !pushed {
		// An implicit unit opened inside this transaction may now be complete.
		if e.executing == nil {
			e.checkPopUnit(ctx, domain.PopNormal)
		}
		return
	}

	if len(e.units) == 0 || !e.units[len(e.units)-1].transacted {
		e.violation(ctx, "top unit does not belong to the closing transaction")
		return
	}

	reason := domain.PopTransactionCommit
	if !committed {
		reason = domain.PopTransactionCancel
	}
	e.checkPopUnit(ctx, reason)

	if lastInStack && len(e.units) > 0 && e.units[len(e.units)-1].transacted {
		e.violation(ctx, "outermost transaction closed with %d units still open", len(e.units))
	}
}
