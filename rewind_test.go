package rewind_test

import (
	"context"
	"testing"

	"github.com/aretw0/rewind"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilHost(t *testing.T) {
	_, err := rewind.New(nil)
	assert.ErrorIs(t, err, domain.ErrMissingService)
}

func TestEditor_HistoryDepth(t *testing.T) {
	ctx := context.Background()
	graph := memory.NewGraph()
	editor, err := rewind.New(graph, rewind.WithHistoryDepth(2))
	require.NoError(t, err)
	defer editor.Close()

	c, err := graph.Add(ctx, "c", nil)
	require.NoError(t, err)
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, graph.Set(ctx, c, "v", v))
	}

	require.Len(t, editor.History(), 2)
	for editor.CanUndo() {
		_, err := editor.Undo(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, "a", c.Get("v"), "the oldest units were evicted")
	assert.True(t, editor.CanRedo())
}

func TestEditor_HooksAndSelection(t *testing.T) {
	ctx := context.Background()
	graph := memory.NewGraph()

	var committed []string
	var sawInProgress bool
	var editor *rewind.Editor
	editor, err := rewind.New(graph,
		rewind.WithLifecycleHooks(domain.LifecycleHooks{
			OnUnitCommitted: func(_ context.Context, e *domain.UnitEvent) { committed = append(committed, e.Name) },
		}),
		rewind.WithLifecycleHooks(domain.LifecycleHooks{
			OnUndoing: func(context.Context, *domain.UnitEvent) { sawInProgress = editor.UndoInProgress() },
		}),
	)
	require.NoError(t, err)
	defer editor.Close()

	c, err := graph.Add(ctx, "c", nil)
	require.NoError(t, err)
	graph.SetSelected([]domain.Component{c}, domain.SelectionReplace)
	require.NoError(t, graph.Remove(ctx, c))

	applied, err := editor.Undo(ctx)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, sawInProgress)
	assert.False(t, editor.UndoInProgress())
	assert.Equal(t, []string{"Add c", "Remove c"}, committed)

	restored, ok := graph.Get("c")
	require.True(t, ok)
	assert.Equal(t, []domain.Component{restored}, graph.Selected())
}

func TestEditor_DisableAndClear(t *testing.T) {
	ctx := context.Background()
	graph := memory.NewGraph()
	editor, err := rewind.New(graph, rewind.WithStrictTransactions())
	require.NoError(t, err)
	defer editor.Close()

	editor.SetEnabled(false)
	assert.False(t, editor.Enabled())
	_, err = graph.Add(ctx, "loaded", nil)
	require.NoError(t, err)
	assert.Empty(t, editor.History())

	editor.SetEnabled(true)
	_, err = graph.Add(ctx, "added", nil)
	require.NoError(t, err)
	assert.Len(t, editor.History(), 1)

	editor.ClearHistory()
	assert.False(t, editor.CanUndo())
	applied, err := editor.Undo(ctx)
	assert.NoError(t, err)
	assert.False(t, applied)
}
