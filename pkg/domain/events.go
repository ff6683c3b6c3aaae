package domain

import (
	"context"
	"time"
)

// EventKind names the kind of mutation captured inside a unit.
type EventKind string

const (
	EventAdd    EventKind = "add"
	EventRemove EventKind = "remove"
	EventChange EventKind = "change"
	EventRename EventKind = "rename"
)

// PopReason tells the engine why it is checking whether to close the top unit.
type PopReason int

const (
	PopNormal PopReason = iota
	PopTransactionCommit
	PopTransactionCancel
)

func (r PopReason) String() string {
	switch r {
	case PopTransactionCommit:
		return "commit"
	case PopTransactionCancel:
		return "cancel"
	default:
		return "normal"
	}
}

// Direction is the way a unit replays: undo walks events last-to-first, redo first-to-last.
type Direction string

const (
	DirectionUndo Direction = "undo"
	DirectionRedo Direction = "redo"
)

// UnitEvent describes a unit at a lifecycle boundary.
type UnitEvent struct {
	Timestamp time.Time `json:"timestamp"`
	UnitID    string    `json:"unit_id"`
	Name      string    `json:"name"`
	Events    int       `json:"events"`

	// Direction is set for OnUndoing/OnUndone.
	Direction Direction `json:"direction,omitempty"`
	// Err is set for OnUndone when the replay failed.
	Err error `json:"-"`
}

// RecordEvent describes one mutation captured into a unit.
type RecordEvent struct {
	Timestamp time.Time `json:"timestamp"`
	UnitID    string    `json:"unit_id"`
	Kind      EventKind `json:"kind"`
	Component string    `json:"component"`
	Member    string    `json:"member,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously on the notifying goroutine and must not mutate the graph.
type LifecycleHooks struct {
	OnUnitOpened    func(context.Context, *UnitEvent)
	OnUnitCommitted func(context.Context, *UnitEvent)
	OnUnitDiscarded func(context.Context, *UnitEvent)
	OnUndoing       func(context.Context, *UnitEvent)
	OnUndone        func(context.Context, *UnitEvent)
	OnEventRecorded func(context.Context, *RecordEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnUnitOpened:    chainUnit(h.OnUnitOpened, other.OnUnitOpened),
		OnUnitCommitted: chainUnit(h.OnUnitCommitted, other.OnUnitCommitted),
		OnUnitDiscarded: chainUnit(h.OnUnitDiscarded, other.OnUnitDiscarded),
		OnUndoing:       chainUnit(h.OnUndoing, other.OnUndoing),
		OnUndone:        chainUnit(h.OnUndone, other.OnUndone),
		OnEventRecorded: chainRecord(h.OnEventRecorded, other.OnEventRecorded),
	}
}

func chainUnit(a, b func(context.Context, *UnitEvent)) func(context.Context, *UnitEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *UnitEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainRecord(a, b func(context.Context, *RecordEvent)) func(context.Context, *RecordEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *RecordEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
