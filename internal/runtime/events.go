package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/snapshot"
)

// undoEvent is the closed set of mutations a unit can hold:
// *addRemoveEvent, *changeEvent and *renameEvent.
// Each undo call inverts the event and leaves it ready to invert back.
type undoEvent interface {
	kind() domain.EventKind
	componentName() string
}

// addRemoveEvent alternately destroys and recreates one component.
type addRemoveEvent struct {
	name     string
	snapshot *snapshot.Store
	// nextUndoAdds is true when the next undo must recreate the component.
	nextUndoAdds bool
	committed    bool
}

func (a *addRemoveEvent) kind() domain.EventKind {
	if a.nextUndoAdds {
		return domain.EventRemove
	}
	return domain.EventAdd
}

func (a *addRemoveEvent) componentName() string { return a.name }

func (a *addRemoveEvent) undo(ctx context.Context, e *Engine) error {
	if a.nextUndoAdds {
		if err := e.snapshots.Deserialize(ctx, a.snapshot, e.host.Container()); err != nil {
			return fmt.Errorf("recreate %s: %w", a.name, err)
		}
	} else if c, ok := e.host.Lookup(a.name); ok {
		if err := e.host.Destroy(ctx, c); err != nil {
			return fmt.Errorf("destroy %s: %w", a.name, err)
		}
	}
	// A missing component was already removed, e.g. together with its parent.
	a.nextUndoAdds = !a.nextUndoAdds
	return nil
}

// changeEvent restores one member (or the whole component) to its state before the unit.
type changeEvent struct {
	name   string
	member domain.Member
	// open is the live component while the unit records; nil once committed.
	open       domain.Component
	before     *snapshot.Store
	after      *snapshot.Store
	savedAfter bool
	committed  bool
}

func (c *changeEvent) kind() domain.EventKind { return domain.EventChange }

func (c *changeEvent) componentName() string { return c.name }

func (c *changeEvent) containsChange(m domain.Member) bool {
	return c.member.Covers(m)
}

func (c *changeEvent) commit() {
	c.committed = true
	c.open = nil
}

// beforeUndo captures the "after" state the first time the event is replayed.
// Capturing earlier would record an intermediate value when the member changed twice.
func (c *changeEvent) beforeUndo(e *Engine) {
	if c.savedAfter {
		return
	}
	c.savedAfter = true
	c.after = e.capture(c.name, c.member)
}

func (c *changeEvent) undo(ctx context.Context, e *Engine) error {
	if c.before != nil {
		if err := e.snapshots.Deserialize(ctx, c.before, e.host.Container()); err != nil {
			return fmt.Errorf("restore %s.%s: %w", c.name, c.member, err)
		}
	}
	c.before, c.after = c.after, c.before
	return nil
}

// renameEvent swaps a component between two names.
type renameEvent struct {
	before string
	after  string
}

func (r *renameEvent) kind() domain.EventKind { return domain.EventRename }

func (r *renameEvent) componentName() string { return r.after }

func (r *renameEvent) undo(ctx context.Context, e *Engine) error {
	c, ok := e.host.Lookup(r.after)
	if ok {
		if err := e.notifier.OnComponentChanging(ctx, c, domain.NameMember); err != nil {
			return fmt.Errorf("rename %s: %w", r.after, err)
		}
		if err := e.host.Rename(ctx, c, r.before); err != nil {
			return fmt.Errorf("rename %s to %s: %w", r.after, r.before, err)
		}
	}
	r.before, r.after = r.after, r.before
	return nil
}

// causesSideEffects reports whether replaying ev can change other members of the graph.
// Such events are replayed in runs: every "after" state of the run is captured first.
func causesSideEffects(ev undoEvent) bool {
	switch ev.(type) {
	case *changeEvent:
		return true
	default:
		return false
	}
}

func beforeUndo(e *Engine, ev undoEvent) {
	switch ev := ev.(type) {
	case *changeEvent:
		ev.beforeUndo(e)
	}
}

func undo(ctx context.Context, e *Engine, ev undoEvent) error {
	switch ev := ev.(type) {
	case *addRemoveEvent:
		return ev.undo(ctx, e)
	case *changeEvent:
		return ev.undo(ctx, e)
	case *renameEvent:
		return ev.undo(ctx, e)
	default:
		panic(fmt.Sprintf("runtime: unknown undo event %T", ev))
	}
}

// capture serializes the named component (or one of its members) as it is right now.
// Nothing is captured when the component cannot be resolved.
func (e *Engine) capture(name string, m domain.Member) *snapshot.Store {
	c, ok := e.host.Lookup(name)
	if !ok {
		return nil
	}
	return e.serialize(c, m)
}

func (e *Engine) serialize(c domain.Component, m domain.Member) *snapshot.Store {
	store := e.snapshots.CreateStore()
	var err error
	if m.IsWhole() {
		err = e.snapshots.Serialize(store, c)
	} else {
		err = e.snapshots.SerializeMember(store, c, m)
	}
	if err != nil {
		e.logger.Warn("snapshot capture failed", "component", e.nameOf(c), "member", m.String(), "err", err)
		return nil
	}
	return store
}
