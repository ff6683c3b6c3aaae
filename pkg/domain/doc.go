/*
Package domain contains the value types shared by the Rewind undo engine and its adapters.

It describes the pieces of a live object graph the engine talks about (components,
members, selections) and the observable outcomes of recording and replaying history
(unit and record events, lifecycle hooks). This package is kept pure and free of
external dependencies, following Hexagonal Architecture principles.

# Key Entities

  - Component: Any live object owned by a host. Identity is Go equality, so hosts hand out pointers.
  - Member: A named property of a component. The zero Member stands for the whole object.
  - SelectionEntry: A selected component remembered by name so it can be re-resolved after undo.
  - LifecycleHooks: Callbacks for observing units as they open, commit, discard and replay.
*/
package domain
