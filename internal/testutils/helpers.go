package testutils

import (
	"testing"

	"github.com/aretw0/rewind/internal/runtime"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/history"
	"github.com/stretchr/testify/require"
)

// Rig wires an engine to an in-memory graph and a history stack.
type Rig struct {
	Graph   *memory.Graph
	History *history.Stack
	Engine  *runtime.Engine
}

// NewRig builds a Rig and closes the engine when the test ends.
// It fails the test immediately on error.
func NewRig(t *testing.T, opts ...runtime.EngineOption) *Rig {
	t.Helper()
	return NewRigWithGraph(t, memory.NewGraph(), opts...)
}

// NewRigWithGraph is NewRig over a preconfigured graph.
func NewRigWithGraph(t *testing.T, g *memory.Graph, opts ...runtime.EngineOption) *Rig {
	t.Helper()

	stack := history.NewStack()
	engine, err := runtime.NewEngine(runtime.Services{
		Host:         g,
		Notifier:     g,
		Transactions: g,
		Snapshots:    g,
		Selection:    g,
		Sink:         stack,
	}, opts...)
	require.NoError(t, err, "Failed to create engine")
	t.Cleanup(engine.Close)

	return &Rig{Graph: g, History: stack, Engine: engine}
}
