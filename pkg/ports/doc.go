/*
Package ports defines the driven ports (interfaces) for the Rewind undo engine.

These interfaces decouple the engine from the host that owns the object graph, allowing
the same engine to record history for any designer-like surface: an in-memory graph,
a document model, or a remote editor session.

# Key Interfaces

  - Host: Component directory (lookup by name, enumeration, member inspection) plus the
    rename and destroy operations the engine needs during replay.
  - ChangeNotifier: Emits paired pre/post mutation notifications and lets the engine raise
    synthetic ones.
  - TransactionCoordinator: Emits nestable open/close boundaries.
  - SnapshotService: Captures and restores component state into opaque snapshot stores.
  - UnitSink: Receives finished units (the embedder's undo stack).
  - CheckoutService: Grants or denies the exclusive right to edit a document.
*/
package ports
