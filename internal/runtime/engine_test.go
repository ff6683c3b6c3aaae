package runtime_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/rewind/internal/runtime"
	"github.com/aretw0/rewind/internal/testutils"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/history"
	"github.com/aretw0/rewind/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []history.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func mustGet(t *testing.T, g *memory.Graph, name string) *memory.Component {
	t.Helper()
	c, ok := g.Get(name)
	require.True(t, ok, "component %s not found", name)
	return c
}

func TestNewEngine_MissingService(t *testing.T) {
	_, err := runtime.NewEngine(runtime.Services{})
	assert.ErrorIs(t, err, domain.ErrMissingService)

	g := memory.NewGraph()
	_, err = runtime.NewEngine(runtime.Services{
		Host:         g,
		Notifier:     g,
		Transactions: g,
		Snapshots:    g,
	})
	assert.ErrorIs(t, err, domain.ErrMissingService)
	assert.ErrorContains(t, err, "unit sink")
}

func TestEngine_ImplicitChangeUnit(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)

	c, err := rig.Graph.Add(ctx, "button", map[string]any{"label": "OK"})
	require.NoError(t, err)
	require.NoError(t, rig.Graph.Set(ctx, c, "label", "Cancel"))

	assert.Equal(t, []string{"Add button", "Change button.label"}, names(rig.History.Entries()))
	assert.Equal(t, 0, rig.Engine.OpenUnits())

	ok, err := rig.History.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "OK", c.Get("label"))

	ok, err = rig.History.Redo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Cancel", c.Get("label"))

	// Replays toggle: undoing again lands on the same state as the first undo.
	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OK", c.Get("label"))
	assert.Len(t, rig.History.Entries(), 2, "replays must not record new units")
}

func TestEngine_AddUndoRedo(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)

	_, err := rig.Graph.Add(ctx, "button", map[string]any{"label": "OK", "width": 80})
	require.NoError(t, err)

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	_, ok := rig.Graph.Get("button")
	assert.False(t, ok)

	_, err = rig.History.Redo(ctx)
	require.NoError(t, err)
	c := mustGet(t, rig.Graph, "button")
	assert.Equal(t, "OK", c.Get("label"))
	assert.Equal(t, 80.0, c.Get("width"))

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rig.Graph.Len())
}

func TestEngine_RemoveRestoresReferences(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	target, err := g.Add(ctx, "target", map[string]any{"text": "hello"})
	require.NoError(t, err)
	label, err := g.Add(ctx, "label", map[string]any{"for": target})
	require.NoError(t, err)

	require.NoError(t, g.Remove(ctx, target))
	assert.Nil(t, label.Get("for"))
	assert.Equal(t, "Remove target", rig.History.Entries()[2].Name)

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	restored := mustGet(t, g, "target")
	assert.Equal(t, "hello", restored.Get("text"))
	assert.Same(t, restored, label.Get("for"))

	_, err = rig.History.Redo(ctx)
	require.NoError(t, err)
	_, ok := g.Get("target")
	assert.False(t, ok)
	assert.Nil(t, label.Get("for"))
}

func TestEngine_RemoveCascadeRestoresChildren(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	panel, err := g.Add(ctx, "panel", nil)
	require.NoError(t, err)
	_, err = g.AppendChild(ctx, panel, "controls", "ok", map[string]any{"label": "OK"})
	require.NoError(t, err)
	_, err = g.AppendChild(ctx, panel, "controls", "cancel", nil)
	require.NoError(t, err)

	require.NoError(t, g.Remove(ctx, panel))
	assert.Equal(t, 0, g.Len())

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	panel = mustGet(t, g, "panel")
	children := panel.Children("controls")
	require.Len(t, children, 2)
	assert.Equal(t, "ok", children[0].Name())
	assert.Equal(t, "cancel", children[1].Name())
	assert.Equal(t, "OK", children[0].Get("label"))
	assert.Same(t, mustGet(t, g, "ok"), children[0])

	// The child removals are already covered by the parent's; redo skips them silently.
	_, err = rig.History.Redo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
}

func TestEngine_AppendChildUndoRedo(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	panel, err := g.Add(ctx, "panel", nil)
	require.NoError(t, err)
	_, err = g.AppendChild(ctx, panel, "controls", "ok", nil)
	require.NoError(t, err)
	assert.Equal(t, "Add ok to panel.controls", rig.History.Entries()[1].Name)

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.Empty(t, panel.Children("controls"))
	_, ok := g.Get("ok")
	assert.False(t, ok)

	_, err = rig.History.Redo(ctx)
	require.NoError(t, err)
	children := panel.Children("controls")
	require.Len(t, children, 1)
	assert.Same(t, mustGet(t, g, "ok"), children[0])
}

func TestEngine_RemoveChildRestoresParentCollection(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	panel, err := g.Add(ctx, "panel", nil)
	require.NoError(t, err)
	ok, err := g.AppendChild(ctx, panel, "controls", "ok", nil)
	require.NoError(t, err)
	_, err = g.AppendChild(ctx, panel, "controls", "cancel", nil)
	require.NoError(t, err)

	require.NoError(t, g.Remove(ctx, ok))
	require.Len(t, panel.Children("controls"), 1)

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	children := panel.Children("controls")
	require.Len(t, children, 2)
	assert.Equal(t, "ok", children[0].Name())
}

func TestEngine_TransactionGroupsAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	c, err := g.Add(ctx, "c", map[string]any{"label": "a", "width": 1})
	require.NoError(t, err)

	tx := g.Begin(ctx, "Edit c")
	require.NoError(t, g.Set(ctx, c, "label", "b"))
	require.NoError(t, g.Set(ctx, c, "label", "c"))
	require.NoError(t, g.Set(ctx, c, "width", 2))
	assert.Equal(t, 1, rig.Engine.OpenUnits())
	require.NoError(t, tx.Commit(ctx))

	entries := rig.History.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Edit c", entries[1].Name)

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", c.Get("label"))
	assert.Equal(t, 1.0, c.Get("width"))

	_, err = rig.History.Redo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", c.Get("label"), "redo restores the final value, not an intermediate one")
	assert.Equal(t, 2.0, c.Get("width"))
}

func TestEngine_WholeComponentChangeCoversMembers(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	c, err := g.Add(ctx, "c", map[string]any{"label": "a", "width": 1})
	require.NoError(t, err)

	tx := g.Begin(ctx, "Reset c")
	require.NoError(t, g.OnComponentChanging(ctx, c, domain.Member{}))
	require.NoError(t, g.Set(ctx, c, "label", "b"))
	require.NoError(t, g.Set(ctx, c, "height", 5))
	g.OnComponentChanged(ctx, c, domain.Member{}, nil, nil)
	require.NoError(t, tx.Commit(ctx))

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", c.Get("label"))
	assert.Nil(t, c.Get("height"))
	assert.Equal(t, []string{"label", "width"}, c.Props())
}

func TestEngine_CancelRollsBack(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	c, err := g.Add(ctx, "c", map[string]any{"label": "a"})
	require.NoError(t, err)

	tx := g.Begin(ctx, "Edit c")
	require.NoError(t, g.Set(ctx, c, "label", "b"))
	_, err = g.Add(ctx, "d", nil)
	require.NoError(t, err)
	require.NoError(t, tx.Cancel(ctx))

	assert.Equal(t, "a", c.Get("label"))
	_, ok := g.Get("d")
	assert.False(t, ok)
	assert.Len(t, rig.History.Entries(), 1)
	assert.Equal(t, 1, rig.History.Discarded())
	assert.False(t, rig.Engine.UndoInProgress())
}

func TestEngine_NestedTransactions(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	c, err := g.Add(ctx, "c", map[string]any{"label": "a", "width": 1})
	require.NoError(t, err)

	outer := g.Begin(ctx, "Outer")
	inner := g.Begin(ctx, "Inner")
	require.NoError(t, g.Set(ctx, c, "label", "b"))
	assert.Equal(t, 2, rig.Engine.OpenUnits())
	require.NoError(t, inner.Commit(ctx))
	assert.Len(t, rig.History.Entries(), 1, "inner units are absorbed by the outer one")

	rolledBack := g.Begin(ctx, "Rolled back")
	require.NoError(t, g.Set(ctx, c, "width", 2))
	require.NoError(t, rolledBack.Cancel(ctx))
	assert.Equal(t, 1.0, c.Get("width"))

	require.NoError(t, outer.Commit(ctx))
	assert.Equal(t, []string{"Add c", "Outer"}, names(rig.History.Entries()))

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", c.Get("label"))
	assert.Equal(t, 1.0, c.Get("width"))
}

func TestEngine_EmptyTransactionIsDiscarded(t *testing.T) {
	ctx := context.Background()
	var discarded []string
	rig := testutils.NewRig(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnUnitDiscarded: func(_ context.Context, e *domain.UnitEvent) {
			discarded = append(discarded, e.Name)
		},
	}))

	require.NoError(t, rig.Graph.Begin(ctx, "Nothing").Commit(ctx))

	assert.Empty(t, rig.History.Entries())
	assert.Equal(t, []string{"Nothing"}, discarded)
	assert.Equal(t, 1, rig.History.Discarded())
}

func TestEngine_Disabled(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	rig.Engine.SetEnabled(false)
	assert.False(t, rig.Engine.Enabled())

	c, err := g.Add(ctx, "c", nil)
	require.NoError(t, err)
	require.NoError(t, g.Set(ctx, c, "label", "x"))
	assert.Empty(t, rig.History.Entries())
	assert.Equal(t, 0, rig.Engine.OpenUnits())

	rig.Engine.SetEnabled(true)
	require.NoError(t, g.Set(ctx, c, "label", "y"))
	assert.Equal(t, []string{"Change c.label"}, names(rig.History.Entries()))
}

func TestEngine_Rename(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	c, err := g.Add(ctx, "a", nil)
	require.NoError(t, err)
	require.NoError(t, g.Rename(ctx, c, "b"))
	assert.Equal(t, "Rename a to b", rig.History.Entries()[1].Name)

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", c.Name())

	_, err = rig.History.Redo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", c.Name())
}

func TestEngine_RenameThenChangeReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	c, err := g.Add(ctx, "a", map[string]any{"label": "x"})
	require.NoError(t, err)

	tx := g.Begin(ctx, "Rename and edit")
	require.NoError(t, g.Rename(ctx, c, "b"))
	require.NoError(t, g.Set(ctx, c, "label", "y"))
	require.NoError(t, tx.Commit(ctx))

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", c.Name())
	assert.Equal(t, "x", c.Get("label"))

	_, err = rig.History.Redo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", c.Name())
	assert.Equal(t, "y", c.Get("label"))
}

func TestEngine_RestoresSelection(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	c, err := g.Add(ctx, "c", nil)
	require.NoError(t, err)
	g.SetSelected([]domain.Component{c}, domain.SelectionReplace)

	require.NoError(t, g.Remove(ctx, c))
	assert.Empty(t, g.Selected())

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	restored := mustGet(t, g, "c")
	assert.Equal(t, []domain.Component{restored}, g.Selected())
}

func TestEngine_HooksFireOncePerReplay(t *testing.T) {
	ctx := context.Background()
	var engine *runtime.Engine
	var (
		opened, committed, recorded int
		undoing                     []domain.Direction
		undone                      []error
		inProgress                  bool
	)
	hooks := domain.LifecycleHooks{
		OnUnitOpened:    func(context.Context, *domain.UnitEvent) { opened++ },
		OnUnitCommitted: func(context.Context, *domain.UnitEvent) { committed++ },
		OnEventRecorded: func(context.Context, *domain.RecordEvent) { recorded++ },
		OnUndoing: func(_ context.Context, e *domain.UnitEvent) {
			undoing = append(undoing, e.Direction)
			inProgress = engine.UndoInProgress()
		},
		OnUndone: func(_ context.Context, e *domain.UnitEvent) { undone = append(undone, e.Err) },
	}
	rig := testutils.NewRig(t, runtime.WithLifecycleHooks(hooks))
	engine = rig.Engine
	g := rig.Graph

	panel, err := g.Add(ctx, "panel", nil)
	require.NoError(t, err)
	_, err = g.AppendChild(ctx, panel, "controls", "ok", nil)
	require.NoError(t, err)
	require.NoError(t, g.Remove(ctx, panel))

	assert.Equal(t, 3, opened)
	assert.Equal(t, 3, committed)
	assert.Equal(t, 5, recorded) // add, add+change, remove+remove

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	_, err = rig.History.Redo(ctx)
	require.NoError(t, err)

	assert.Equal(t, []domain.Direction{domain.DirectionUndo, domain.DirectionRedo}, undoing)
	assert.Equal(t, []error{nil, nil}, undone)
	assert.True(t, inProgress)
	assert.False(t, engine.UndoInProgress())
	assert.Equal(t, 3, opened, "replays never open units")
}

func TestEngine_CheckoutDeniedKeepsUnit(t *testing.T) {
	ctx := context.Background()
	table := memory.NewCheckouts()
	g := memory.NewGraph(memory.WithCheckout(table.For("alice"), "doc"))
	rig := testutils.NewRigWithGraph(t, g)

	c, err := g.Add(ctx, "c", map[string]any{"label": "a"})
	require.NoError(t, err)
	require.NoError(t, g.Set(ctx, c, "label", "b"))

	require.NoError(t, table.For("alice").Release(ctx, "doc"))
	require.NoError(t, table.For("bob").Checkout(ctx, "doc"))

	ok, err := rig.History.Undo(ctx)
	assert.ErrorIs(t, err, domain.ErrCheckoutDenied)
	assert.False(t, ok)
	assert.Equal(t, "b", c.Get("label"))
	assert.True(t, rig.History.CanUndo())
	assert.False(t, rig.History.CanRedo())
	assert.False(t, g.InTransaction())

	require.NoError(t, table.For("bob").Release(ctx, "doc"))
	ok, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", c.Get("label"))
}

func TestEngine_TransactionViolations(t *testing.T) {
	ctx := context.Background()

	lenient := testutils.NewRig(t)
	assert.NotPanics(t, func() { lenient.Engine.TransactionClosed(ctx, true, true) })

	strict := testutils.NewRig(t, runtime.WithStrictTransactions())
	assert.Panics(t, func() { strict.Engine.TransactionClosed(ctx, true, true) })
}

func TestEngine_CloseStopsRecording(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)

	rig.Engine.Close()
	_, err := rig.Graph.Add(ctx, "c", nil)
	require.NoError(t, err)
	assert.Empty(t, rig.History.Entries())
}

// countingCheckout grants every checkout except the denyAt-th one.
type countingCheckout struct {
	calls  int
	denyAt int
}

func (c *countingCheckout) Checkout(_ context.Context, document string) error {
	c.calls++
	if c.calls == c.denyAt {
		return fmt.Errorf("%w: %s", domain.ErrCheckoutDenied, document)
	}
	return nil
}

func (c *countingCheckout) Release(context.Context, string) error { return nil }

func TestEngine_DeniedReplayRevertsEarlierEvents(t *testing.T) {
	ctx := context.Background()
	checkout := &countingCheckout{}
	g := memory.NewGraph(memory.WithCheckout(checkout, "doc"))
	rig := testutils.NewRigWithGraph(t, g)

	a, err := g.Add(ctx, "a", map[string]any{"v": "a0"})
	require.NoError(t, err)
	b, err := g.Add(ctx, "b", map[string]any{"v": "b0"})
	require.NoError(t, err)

	tx := g.Begin(ctx, "Edit both")
	require.NoError(t, g.Set(ctx, a, "v", "a1"))
	require.NoError(t, g.Set(ctx, b, "v", "b1"))
	require.NoError(t, tx.Commit(ctx))

	// Undo restores b first, then a; the second checkout is refused.
	checkout.calls, checkout.denyAt = 0, 2
	ok, err := rig.History.Undo(ctx)
	require.ErrorIs(t, err, domain.ErrCheckoutDenied)
	assert.False(t, ok)
	assert.Equal(t, "a1", a.Get("v"))
	assert.Equal(t, "b1", b.Get("v"), "restored member is put back")
	assert.False(t, g.InTransaction())

	checkout.denyAt = 0
	ok, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a0", a.Get("v"))
	assert.Equal(t, "b0", b.Get("v"))

	ok, err = rig.History.Redo(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a1", a.Get("v"))
	assert.Equal(t, "b1", b.Get("v"))
}

// replayLog records the pre-notifications raised while a unit replays.
type replayLog struct {
	g     *memory.Graph
	calls []string
}

var _ ports.ChangeListener = (*replayLog)(nil)

func (l *replayLog) record(op string, c domain.Component) {
	name, _ := l.g.NameOf(c)
	l.calls = append(l.calls, op+" "+name)
}

func (l *replayLog) ComponentAdding(_ context.Context, c domain.Component) error {
	l.record("add", c)
	return nil
}

func (l *replayLog) ComponentAdded(context.Context, domain.Component) {}

func (l *replayLog) ComponentChanging(_ context.Context, c domain.Component, _ domain.Member) error {
	l.record("change", c)
	return nil
}

func (l *replayLog) ComponentChanged(context.Context, domain.Component, domain.Member, any, any) {}

func (l *replayLog) ComponentRemoving(_ context.Context, c domain.Component) error {
	l.record("remove", c)
	return nil
}

func (l *replayLog) ComponentRemoved(context.Context, domain.Component) {}

func (l *replayLog) ComponentRename(context.Context, domain.Component, string, string) {}

func TestEngine_UndoIsLastToFirstRedoIsFirstToLast(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	a, err := g.Add(ctx, "a", map[string]any{"v": 0})
	require.NoError(t, err)
	b, err := g.Add(ctx, "b", nil)
	require.NoError(t, err)
	c, err := g.Add(ctx, "c", map[string]any{"v": 0})
	require.NoError(t, err)

	tx := g.Begin(ctx, "Mixed")
	require.NoError(t, g.Set(ctx, a, "v", 1))
	require.NoError(t, g.Remove(ctx, b))
	require.NoError(t, g.Set(ctx, c, "v", 1))
	require.NoError(t, tx.Commit(ctx))

	log := &replayLog{g: g}
	t.Cleanup(g.Subscribe(log))

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"change c", "add b", "change a"}, log.calls)

	log.calls = nil
	_, err = rig.History.Redo(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"change a", "remove b", "change c"}, log.calls)
}

func TestEngine_PropertyNamedNameIsRecorded(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	button, err := g.Add(ctx, "button", map[string]any{"Name": "first"})
	require.NoError(t, err)
	require.NoError(t, g.Set(ctx, button, "Name", "second"))
	assert.Equal(t, []string{"Add button", "Change button.Name"}, names(rig.History.Entries()))

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.Same(t, button, mustGet(t, g, "button"))
	assert.Equal(t, "first", button.Get("Name"))
}

func TestEngine_RemoveRestoresReferenceInNameProperty(t *testing.T) {
	ctx := context.Background()
	rig := testutils.NewRig(t)
	g := rig.Graph

	a, err := g.Add(ctx, "a", nil)
	require.NoError(t, err)
	b, err := g.Add(ctx, "b", nil)
	require.NoError(t, err)
	require.NoError(t, g.Set(ctx, a, "Name", b))

	require.NoError(t, g.Remove(ctx, b))
	assert.Nil(t, a.Get("Name"))

	_, err = rig.History.Undo(ctx)
	require.NoError(t, err)
	assert.Same(t, mustGet(t, g, "b"), a.Get("Name"))
}
