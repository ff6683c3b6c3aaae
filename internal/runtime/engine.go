package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/ports"
)

// Services bundles the collaborators the engine listens to and drives.
// Selection is optional; every other field is required.
type Services struct {
	Host         ports.Host
	Notifier     ports.ChangeNotifier
	Transactions ports.TransactionCoordinator
	Snapshots    ports.SnapshotService
	Selection    ports.SelectionService
	Sink         ports.UnitSink
}

// Engine records mutation notifications into undo units.
//
// It owns a stack of open units. A unit is pushed lazily by the first notification that
// arrives while nothing is open, or by every transaction that opens. Every notification is
// forwarded to every open unit, so a wrapping unit already holds what a nested one holds
// when the nested one is dropped on commit. The engine is not safe for concurrent use.
type Engine struct {
	host         ports.Host
	notifier     ports.ChangeNotifier
	transactions ports.TransactionCoordinator
	snapshots    ports.SnapshotService
	selection    ports.SelectionService
	sink         ports.UnitSink

	units []*Unit
	// frames mirrors the host's transaction nesting; true when the frame pushed a unit.
	frames []bool
	// executing is the unit currently replaying, if any.
	executing *Unit
	enabled   bool
	// removedRefs holds, per component being removed, the siblings that pointed at it.
	removedRefs map[domain.Component][]reference

	strict bool
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time

	unsubscribe []func()
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithStrictTransactions makes transaction contract violations panic instead of being logged.
func WithStrictTransactions() EngineOption {
	return func(e *Engine) {
		e.strict = true
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine validates the collaborators and subscribes to their notifications.
// It fails with domain.ErrMissingService before subscribing to anything.
func NewEngine(svc Services, opts ...EngineOption) (*Engine, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"host", svc.Host == nil},
		{"change notifier", svc.Notifier == nil},
		{"transaction coordinator", svc.Transactions == nil},
		{"snapshot service", svc.Snapshots == nil},
		{"unit sink", svc.Sink == nil},
	}
	for _, r := range required {
		if r.missing {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingService, r.name)
		}
	}

	e := &Engine{
		host:         svc.Host,
		notifier:     svc.Notifier,
		transactions: svc.Transactions,
		snapshots:    svc.Snapshots,
		selection:    svc.Selection,
		sink:         svc.Sink,
		enabled:      true,
		removedRefs:  make(map[domain.Component][]reference),
		logger:       logging.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.unsubscribe = append(e.unsubscribe,
		e.notifier.Subscribe(e),
		e.transactions.SubscribeTransactions(e),
	)
	return e, nil
}

// Close unsubscribes from the host. Units already handed to the sink stay replayable.
func (e *Engine) Close() {
	for _, fn := range e.unsubscribe {
		if fn != nil {
			fn()
		}
	}
	e.unsubscribe = nil
}

// Enabled reports whether new units may be created.
func (e *Engine) Enabled() bool {
	return e.enabled
}

// SetEnabled toggles creation of new units. Units already open keep recording.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled = enabled
}

// UndoInProgress reports whether a unit is currently replaying.
func (e *Engine) UndoInProgress() bool {
	return e.executing != nil
}

// OpenUnits returns the number of units currently on the stack.
func (e *Engine) OpenUnits() int {
	return len(e.units)
}

func (e *Engine) canCreate() bool {
	return e.enabled && e.executing == nil
}

// pushIfNeeded opens an implicit unit when a mutation arrives outside any unit.
func (e *Engine) pushIfNeeded(ctx context.Context, name func() string) {
	if len(e.units) == 0 && e.canCreate() {
		e.push(ctx, newUnit(e, name(), false))
	}
}

func (e *Engine) push(ctx context.Context, u *Unit) {
	e.units = append(e.units, u)
	e.logger.DebugContext(ctx, "undo unit opened", "unit", u.name, "depth", len(e.units), "transacted", u.transacted)
	e.emitUnit(ctx, e.hooks.OnUnitOpened, u, "")
}

// checkPopUnit closes the top unit when its boundary has been reached.
func (e *Engine) checkPopUnit(ctx context.Context, reason domain.PopReason) {
	if len(e.units) == 0 {
		return
	}
	if reason == domain.PopNormal && e.transactions.InTransaction() {
		return
	}

	u := e.units[len(e.units)-1]
	e.units = e.units[:len(e.units)-1]
	u.close()
	e.logger.DebugContext(ctx, "undo unit closed",
		"unit", u.name,
		"reason", reason.String(),
		"events", len(u.events),
		"depth", len(e.units),
	)

	if u.IsEmpty() {
		if len(e.units) == 0 {
			e.discard(ctx, u)
		}
		return
	}

	if reason == domain.PopTransactionCancel {
		if err := u.Undo(ctx); err != nil {
			e.logger.ErrorContext(ctx, "rollback of cancelled transaction failed", "unit", u.name, "err", err)
		}
		if len(e.units) == 0 {
			e.discard(ctx, u)
		}
		return
	}

	if len(e.units) == 0 {
		e.emitUnit(ctx, e.hooks.OnUnitCommitted, u, "")
		e.sink.AddUndoUnit(ctx, u)
	}
}

func (e *Engine) discard(ctx context.Context, u *Unit) {
	e.emitUnit(ctx, e.hooks.OnUnitDiscarded, u, "")
	e.sink.DiscardUndoUnit(ctx, u)
}

// violation reports a collaborator integration bug.
func (e *Engine) violation(ctx context.Context, msg string, args ...any) {
	err := fmt.Errorf("%w: %s", domain.ErrUnbalancedTransaction, fmt.Sprintf(msg, args...))
	if e.strict {
		panic(err)
	}
	e.logger.ErrorContext(ctx, "transaction contract violation", "err", err, "depth", len(e.units))
}

func (e *Engine) emitUnit(ctx context.Context, hook func(context.Context, *domain.UnitEvent), u *Unit, dir domain.Direction) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.UnitEvent{
		Timestamp: e.now(),
		UnitID:    u.id,
		Name:      u.name,
		Events:    len(u.events),
		Direction: dir,
	})
}

func (e *Engine) emitRecord(ctx context.Context, u *Unit, kind domain.EventKind, component string, m domain.Member) {
	if e.hooks.OnEventRecorded == nil {
		return
	}
	e.hooks.OnEventRecorded(ctx, &domain.RecordEvent{
		Timestamp: e.now(),
		UnitID:    u.id,
		Kind:      kind,
		Component: component,
		Member:    m.Name,
	})
}

// nameOf resolves a display name for unit descriptions.
func (e *Engine) nameOf(c domain.Component) string {
	if name, ok := e.host.NameOf(c); ok {
		return name
	}
	return fmt.Sprintf("%T", c)
}
