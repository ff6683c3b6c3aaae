/*
Package rewind records undo history for an in-memory component graph, in the style of a
visual designer's undo engine.

The host (the object graph) raises paired notifications around every mutation: adding,
changing, removing and renaming components. Rewind listens to them and captures each
logical operation into an undo unit: a snapshot of the affected state before and after.
Transactions opened on the host group everything inside them into one unit; a cancelled
transaction is rolled back by replaying its unit.

# Concept

Units alternate direction on every replay: the first replay undoes, the next redoes.
While a unit replays, the notifications it causes are never recorded. References other
components held to a removed component are restored together with it.

# Usage

The in-memory graph in pkg/adapters/memory implements every port a host needs:

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/rewind"
		"github.com/aretw0/rewind/pkg/adapters/memory"
	)

	func main() {
		ctx := context.Background()
		graph := memory.NewGraph()

		editor, err := rewind.New(graph)
		if err != nil {
			log.Fatal(err)
		}
		defer editor.Close()

		button, _ := graph.Add(ctx, "button", map[string]any{"label": "OK"})
		_ = graph.Set(ctx, button, "label", "Cancel")

		if _, err := editor.Undo(ctx); err != nil { // label is "OK" again
			log.Fatal(err)
		}
	}

# Observability

Lifecycle hooks (domain.LifecycleHooks) report units as they open, commit, get discarded and
replay. pkg/observability turns them into Prometheus metrics and structured logs.
*/
package rewind
