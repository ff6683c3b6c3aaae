package ports

import "context"

// Unit is a closed, replayable undo unit.
// Each call to Undo reverses the direction of the previous one: undo, redo, undo...
type Unit interface {
	ID() string
	Name() string
	IsEmpty() bool
	Undo(ctx context.Context) error
}

// UnitSink receives units once they leave the engine's control.
type UnitSink interface {
	// AddUndoUnit hands over a committed, non-empty unit.
	AddUndoUnit(ctx context.Context, u Unit)

	// DiscardUndoUnit reports a unit that will never be replayed (empty or cancelled).
	DiscardUndoUnit(ctx context.Context, u Unit)
}
