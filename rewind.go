package rewind

import (
	"context"
	"log/slog"

	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/internal/runtime"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/history"
	"github.com/aretw0/rewind/pkg/ports"
)

// Version is the library version reported by the CLI.
const Version = "0.3.0"

// Host is everything a designer surface must provide to be recorded.
// A host that also implements ports.SelectionService gets its selection restored on replay.
type Host interface {
	ports.Host
	ports.ChangeNotifier
	ports.TransactionCoordinator
	ports.SnapshotService
}

// Editor is the high-level entry point for the Rewind library.
// It wires the undo engine to a host and keeps the resulting units on a history stack.
type Editor struct {
	engine  *runtime.Engine
	history *history.Stack
}

type config struct {
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	depth     int
	strict    bool
	selection ports.SelectionService
}

// Option defines a functional option for configuring the Editor.
type Option func(*config)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls are merged.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *config) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// WithHistoryDepth bounds the number of units kept (default history.DefaultDepth).
func WithHistoryDepth(depth int) Option {
	return func(c *config) {
		c.depth = depth
	}
}

// WithStrictTransactions panics on unbalanced transaction notifications instead of logging.
func WithStrictTransactions() Option {
	return func(c *config) {
		c.strict = true
	}
}

// WithSelection overrides the selection service detected on the host.
func WithSelection(svc ports.SelectionService) Option {
	return func(c *config) {
		c.selection = svc
	}
}

// New starts recording host. Close the editor to stop.
func New(host Host, opts ...Option) (*Editor, error) {
	cfg := &config{logger: logging.NewNop()}
	if sel, ok := host.(ports.SelectionService); ok {
		cfg.selection = sel
	}
	for _, opt := range opts {
		opt(cfg)
	}

	stack := history.NewStack(history.WithDepth(cfg.depth), history.WithLogger(cfg.logger))
	engineOpts := []runtime.EngineOption{
		runtime.WithLogger(cfg.logger),
		runtime.WithLifecycleHooks(cfg.hooks),
	}
	if cfg.strict {
		engineOpts = append(engineOpts, runtime.WithStrictTransactions())
	}

	var svc runtime.Services
	if host != nil {
		svc = runtime.Services{
			Host:         host,
			Notifier:     host,
			Transactions: host,
			Snapshots:    host,
			Selection:    cfg.selection,
			Sink:         stack,
		}
	}
	engine, err := runtime.NewEngine(svc, engineOpts...)
	if err != nil {
		return nil, err
	}
	return &Editor{engine: engine, history: stack}, nil
}

// Undo reverts the most recent unit. It reports false when there was nothing to undo.
func (e *Editor) Undo(ctx context.Context) (bool, error) { return e.history.Undo(ctx) }

// Redo reapplies the most recently undone unit.
func (e *Editor) Redo(ctx context.Context) (bool, error) { return e.history.Redo(ctx) }

// CanUndo reports whether Undo would do anything.
func (e *Editor) CanUndo() bool { return e.history.CanUndo() }

// CanRedo reports whether Redo would do anything.
func (e *Editor) CanRedo() bool { return e.history.CanRedo() }

// History lists the recorded units, oldest first.
func (e *Editor) History() []history.Entry { return e.history.Entries() }

// ClearHistory forgets every recorded unit.
func (e *Editor) ClearHistory() { e.history.Clear() }

// Enabled reports whether new units are being recorded.
func (e *Editor) Enabled() bool { return e.engine.Enabled() }

// SetEnabled pauses or resumes recording, e.g. while loading a document.
func (e *Editor) SetEnabled(enabled bool) { e.engine.SetEnabled(enabled) }

// UndoInProgress reports whether a unit is replaying.
func (e *Editor) UndoInProgress() bool { return e.engine.UndoInProgress() }

// Close stops recording. The history stays usable.
func (e *Editor) Close() { e.engine.Close() }
