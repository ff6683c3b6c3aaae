package runtime

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/ports"
	"github.com/google/uuid"
)

var _ ports.Unit = (*Unit)(nil)

// Unit is one undoable operation: an ordered list of captured mutations.
//
// While open, the unit also tracks in-flight sub-events so that paired notifications can be
// matched up. Close discards that bookkeeping; after it the event list is only replayed.
type Unit struct {
	engine     *Engine
	id         string
	name       string
	transacted bool

	events []undoEvent
	// reverse flips after every replay: false replays last-to-first (undo).
	reverse bool
	closed  bool

	selection []domain.SelectionEntry

	openChanges []*changeEvent
	openRemoves map[domain.Component]*addRemoveEvent
	adding      map[domain.Component]bool
	added       map[domain.Component]bool
}

func newUnit(e *Engine, name string, transacted bool) *Unit {
	u := &Unit{
		engine:      e,
		id:          uuid.NewString(),
		name:        name,
		transacted:  transacted,
		openRemoves: make(map[domain.Component]*addRemoveEvent),
		adding:      make(map[domain.Component]bool),
		added:       make(map[domain.Component]bool),
	}
	u.selection = e.captureSelection()
	return u
}

// ID returns the unit's unique identifier.
func (u *Unit) ID() string { return u.id }

// Name returns the human-readable description.
func (u *Unit) Name() string { return u.name }

// IsEmpty reports whether no mutation was ever recorded.
func (u *Unit) IsEmpty() bool { return len(u.events) == 0 }

// Len returns the number of recorded events.
func (u *Unit) Len() int { return len(u.events) }

// Undone reports whether the unit is currently in its undone state.
func (u *Unit) Undone() bool { return u.reverse }

func (u *Unit) String() string {
	return fmt.Sprintf("%s (%d events)", u.name, len(u.events))
}

func (u *Unit) append(ctx context.Context, ev undoEvent, m domain.Member) {
	u.events = append(u.events, ev)
	u.engine.emitRecord(ctx, u, ev.kind(), ev.componentName(), m)
}

func (u *Unit) componentAdding(c domain.Component) {
	u.adding[c] = true
}

func (u *Unit) componentAdded(ctx context.Context, c domain.Component) {
	delete(u.adding, c)
	u.added[c] = true

	name, ok := u.engine.host.NameOf(c)
	if !ok {
		return
	}
	u.append(ctx, &addRemoveEvent{
		name:      name,
		snapshot:  u.engine.serialize(c, domain.Member{}),
		committed: true,
	}, domain.Member{})
}

func (u *Unit) componentChanging(ctx context.Context, c domain.Component, m domain.Member) {
	// Partial construction state is covered by the snapshot taken on Added.
	if u.adding[c] {
		return
	}
	// Names are recorded by the rename notification that follows.
	if m.IsRename() {
		return
	}
	name, ok := u.engine.host.NameOf(c)
	if !ok {
		return
	}
	if !m.Content {
		for _, ce := range u.openChanges {
			if sameComponent(ce.open, c) && ce.containsChange(m) {
				return
			}
		}
	}

	ce := &changeEvent{name: name, member: m, open: c}
	// Undo removes a component added by this unit anyway; its old state is meaningless.
	if !u.added[c] {
		ce.before = u.engine.serialize(c, m)
	}
	u.openChanges = append(u.openChanges, ce)
	u.append(ctx, ce, m)
}

func (u *Unit) componentChanged(c domain.Component, m domain.Member) {
	if !m.Content {
		return
	}
	idx := -1
	for i := len(u.events) - 1; i >= 0; i-- {
		ce, ok := u.events[i].(*changeEvent)
		if ok && !ce.committed && sameComponent(ce.open, c) && ce.member.Name == m.Name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	// A collection usually announces Changing before its new child is added and Changed
	// after. The old contents can only be reapplied once the child exists again, so the
	// change moves behind the add. A rename in between would change what the names mean.
	sawAdd := false
	for _, ev := range u.events[idx+1:] {
		switch ev := ev.(type) {
		case *renameEvent:
			return
		case *addRemoveEvent:
			if !ev.nextUndoAdds {
				sawAdd = true
			}
		}
	}
	if !sawAdd {
		return
	}
	ev := u.events[idx]
	u.events = append(slices.Delete(u.events, idx, idx+1), ev)
}

func (u *Unit) componentRemoving(ctx context.Context, c domain.Component) {
	name, ok := u.engine.host.NameOf(c)
	if !ok {
		return
	}
	ev := &addRemoveEvent{
		name:         name,
		snapshot:     u.engine.serialize(c, domain.Member{}),
		nextUndoAdds: true,
	}
	u.openRemoves[c] = ev
	u.append(ctx, ev, domain.Member{})
}

func (u *Unit) componentRemoved(c domain.Component) {
	ev, ok := u.openRemoves[c]
	if !ok {
		return
	}
	delete(u.openRemoves, c)
	ev.committed = true

	idx := slices.Index(u.events, undoEvent(ev))
	if idx < 0 {
		return
	}
	// Changes raised while the component was being torn down must replay before it is
	// recreated, so the remove moves behind them.
	end := idx + 1
	for end < len(u.events) {
		if _, isChange := u.events[end].(*changeEvent); !isChange {
			break
		}
		end++
	}
	if end == idx+1 {
		return
	}
	copy(u.events[idx:end-1], u.events[idx+1:end])
	u.events[end-1] = ev
}

func (u *Unit) componentRename(ctx context.Context, oldName, newName string) {
	u.append(ctx, &renameEvent{before: oldName, after: newName}, domain.NameMember)
}

// close commits every open sub-event. It must run before the first Undo.
func (u *Unit) close() {
	if u.closed {
		return
	}
	for _, ce := range u.openChanges {
		ce.commit()
	}
	for _, ev := range u.openRemoves {
		ev.committed = true
	}
	u.openChanges = nil
	u.openRemoves = nil
	u.adding = nil
	u.added = nil
	u.closed = true
}

// Undo replays the unit. The first call undoes, the next redoes, and so on.
//
// The replay runs inside one transaction of its own so the notifications it triggers are
// batched, and while it runs no new unit can be created from them. If replay fails (for
// example with domain.ErrCheckoutDenied) that transaction is cancelled, the error is
// returned and the unit keeps its direction.
func (u *Unit) Undo(ctx context.Context) error {
	e := u.engine
	u.close()

	saved := e.executing
	e.executing = u
	defer func() { e.executing = saved }()

	dir := domain.DirectionUndo
	if u.reverse {
		dir = domain.DirectionRedo
	}
	if saved == nil {
		e.emitUnit(ctx, e.hooks.OnUndoing, u, dir)
	}

	err := u.replay(ctx, dir)

	if saved == nil && e.hooks.OnUndone != nil {
		e.hooks.OnUndone(ctx, &domain.UnitEvent{
			Timestamp: e.now(),
			UnitID:    u.id,
			Name:      u.name,
			Events:    len(u.events),
			Direction: dir,
			Err:       err,
		})
	}
	return err
}

func (u *Unit) replay(ctx context.Context, dir domain.Direction) error {
	e := u.engine
	tx, err := e.transactions.CreateTransaction(ctx, fmt.Sprintf("%s %s", dir, u.name))
	if err != nil {
		return fmt.Errorf("open %s transaction: %w", dir, err)
	}

	if err := u.undoCore(ctx); err != nil {
		if cerr := tx.Cancel(ctx); cerr != nil {
			e.logger.ErrorContext(ctx, "failed to cancel replay transaction", "unit", u.name, "err", cerr)
		}
		return fmt.Errorf("%s %q: %w", dir, u.name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s transaction: %w", dir, err)
	}
	e.logger.DebugContext(ctx, "undo unit replayed", "unit", u.name, "direction", string(dir), "events", len(u.events))
	return nil
}

// undoCore walks the events backwards (undo) or forwards (redo). Consecutive events with
// side effects are replayed as a run: every "after" state is captured before any of them
// is applied, while the graph is still untouched.
//
// When an event fails, the events already replayed in this pass are inverted again, newest
// first, so the graph and the unit are left as they were before the call.
func (u *Unit) undoCore(ctx context.Context) error {
	e := u.engine
	order := u.order()

	var done []undoEvent
	apply := func(ev undoEvent) error {
		if err := undo(ctx, e, ev); err != nil {
			u.revert(ctx, done)
			return err
		}
		done = append(done, ev)
		return nil
	}

	for i := 0; i < len(order); {
		ev := u.events[order[i]]
		if !causesSideEffects(ev) {
			if err := apply(ev); err != nil {
				return err
			}
			i++
			continue
		}

		end := i
		for end < len(order) && causesSideEffects(u.events[order[end]]) {
			end++
		}
		for _, idx := range order[i:end] {
			beforeUndo(e, u.events[idx])
		}
		for _, idx := range order[i:end] {
			if err := apply(u.events[idx]); err != nil {
				return err
			}
		}
		i = end
	}

	u.reverse = !u.reverse
	e.restoreSelection(u.selection)
	return nil
}

// revert inverts done, newest first. Every event is its own inverse.
func (u *Unit) revert(ctx context.Context, done []undoEvent) {
	for i := len(done) - 1; i >= 0; i-- {
		if err := undo(ctx, u.engine, done[i]); err != nil {
			u.engine.logger.ErrorContext(ctx, "failed to revert partial replay",
				"unit", u.name,
				"component", done[i].componentName(),
				"err", err,
			)
		}
	}
}

// order lists event indexes in replay order.
func (u *Unit) order() []int {
	order := make([]int, len(u.events))
	for i := range order {
		if u.reverse {
			order[i] = i
		} else {
			order[i] = len(u.events) - 1 - i
		}
	}
	return order
}
