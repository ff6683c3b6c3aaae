package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/domain"
)

// ErrExpectation is returned when an expect step does not match the graph.
var ErrExpectation = errors.New("expectation failed")

// Editor is the undo surface a scenario drives.
type Editor interface {
	Undo(ctx context.Context) (bool, error)
	Redo(ctx context.Context) (bool, error)
}

// Result reports what a single step did.
type Result struct {
	Index int
	Step  Step
	// Applied is false for undo/redo with nothing to replay.
	Applied bool
	Err     error
}

// Runner executes scenarios against a memory graph.
type Runner struct {
	graph  *memory.Graph
	editor Editor
	txs    []*memory.Transaction
	logger *slog.Logger
}

// RunnerOption configures the Runner.
type RunnerOption func(*Runner)

// WithLogger sets the structured logger for the runner.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner for graph. editor may be nil for scenarios without undo/redo.
func NewRunner(graph *memory.Graph, editor Editor, opts ...RunnerOption) *Runner {
	r := &Runner{graph: graph, editor: editor, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every step in order and stops at the first unexpected error.
// Transactions the scenario left open are cancelled.
func (r *Runner) Run(ctx context.Context, s *Script) ([]Result, error) {
	results := make([]Result, 0, len(s.Steps))
	defer r.cancelOpen(ctx)

	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		applied, err := r.exec(ctx, step)
		res := Result{Index: i + 1, Step: step, Applied: applied, Err: err}
		results = append(results, res)

		switch {
		case step.Fails && err == nil:
			return results, fmt.Errorf("step %d (%s): expected failure", res.Index, step)
		case step.Fails:
			r.logger.DebugContext(ctx, "step failed as expected", "step", res.Index, "op", step.Op, "error", err)
		case err != nil:
			return results, fmt.Errorf("step %d (%s): %w", res.Index, step, err)
		default:
			r.logger.DebugContext(ctx, "step executed", "step", res.Index, "op", step.Op, "applied", applied)
		}
	}
	return results, nil
}

func (r *Runner) cancelOpen(ctx context.Context) {
	for len(r.txs) > 0 {
		tx := r.txs[len(r.txs)-1]
		r.txs = r.txs[:len(r.txs)-1]
		r.logger.WarnContext(ctx, "cancelling transaction left open", "transaction", tx.Description())
		if err := tx.Cancel(ctx); err != nil {
			r.logger.ErrorContext(ctx, "cancel failed", "transaction", tx.Description(), "error", err)
		}
	}
}

func (r *Runner) exec(ctx context.Context, step Step) (bool, error) {
	switch step.Op {
	case OpAdd:
		_, err := r.graph.Add(ctx, step.Name, step.Props)
		return err == nil, err

	case OpAppend:
		parent, err := r.lookup(step.Parent)
		if err != nil {
			return false, err
		}
		_, err = r.graph.AppendChild(ctx, parent, step.Prop, step.Name, step.Props)
		return err == nil, err

	case OpSet:
		c, err := r.lookup(step.Name)
		if err != nil {
			return false, err
		}
		value := step.Value
		if step.Ref != "" {
			ref, err := r.lookup(step.Ref)
			if err != nil {
				return false, err
			}
			value = ref
		}
		err = r.graph.Set(ctx, c, step.Prop, value)
		return err == nil, err

	case OpRemove:
		c, err := r.lookup(step.Name)
		if err != nil {
			return false, err
		}
		err = r.graph.Remove(ctx, c)
		return err == nil, err

	case OpRename:
		c, err := r.lookup(step.Name)
		if err != nil {
			return false, err
		}
		err = r.graph.Rename(ctx, c, step.To)
		return err == nil, err

	case OpSelect:
		selection := make([]domain.Component, 0, len(step.Names))
		for _, name := range step.Names {
			c, err := r.lookup(name)
			if err != nil {
				return false, err
			}
			selection = append(selection, c)
		}
		r.graph.SetSelected(selection, domain.SelectionReplace)
		return true, nil

	case OpBegin:
		description := step.Description
		if description == "" {
			description = "Script"
		}
		r.txs = append(r.txs, r.graph.Begin(ctx, description))
		return true, nil

	case OpCommit, OpCancel:
		if len(r.txs) == 0 {
			return false, fmt.Errorf("%w: no open transaction", domain.ErrUnbalancedTransaction)
		}
		tx := r.txs[len(r.txs)-1]
		r.txs = r.txs[:len(r.txs)-1]
		if step.Op == OpCommit {
			return true, tx.Commit(ctx)
		}
		return true, tx.Cancel(ctx)

	case OpUndo:
		if r.editor == nil {
			return false, fmt.Errorf("undo: no editor attached")
		}
		return r.editor.Undo(ctx)

	case OpRedo:
		if r.editor == nil {
			return false, fmt.Errorf("redo: no editor attached")
		}
		return r.editor.Redo(ctx)

	case OpExpect:
		return true, r.expect(step)
	}
	return false, fmt.Errorf("unknown op %q", step.Op)
}

func (r *Runner) lookup(name string) (*memory.Component, error) {
	c, ok := r.graph.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrComponentNotFound, name)
	}
	return c, nil
}

// expect compares the listed properties in their snapshot form, so references are written
// as {$ref: name} and collections as {$refs: [...]}. A null property must be absent.
func (r *Runner) expect(step Step) error {
	props, exists := r.graph.Dump()[step.Name]
	if step.Exists != nil && *step.Exists != exists {
		return fmt.Errorf("%w: %s exists=%t", ErrExpectation, step.Name, exists)
	}
	if !exists {
		if len(step.Props) > 0 {
			return fmt.Errorf("%w: %s not found", ErrExpectation, step.Name)
		}
		return nil
	}
	for key, want := range step.Props {
		got, err := canonical(props[key])
		if err != nil {
			return err
		}
		expected, err := canonical(want)
		if err != nil {
			return err
		}
		if got != expected {
			return fmt.Errorf("%w: %s.%s is %s, want %s", ErrExpectation, step.Name, key, got, expected)
		}
	}
	return nil
}

func canonical(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %v: %w", v, err)
	}
	return string(data), nil
}
