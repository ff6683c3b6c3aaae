// Package history provides the undo/redo stack that receives units from the engine.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/ports"
)

// DefaultDepth bounds the number of units kept when no depth is configured.
const DefaultDepth = 100

// ErrReplayInProgress is returned when Undo or Redo is called while another replay runs.
var ErrReplayInProgress = errors.New("history: replay already in progress")

var _ ports.UnitSink = (*Stack)(nil)

// Entry describes one unit on the stack.
type Entry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Undone bool   `json:"undone"`
}

// Stack is a bounded undo/redo history.
//
// Units below the cursor are done and can be undone; units at or above it were undone and
// can be redone. Adding a unit drops everything above the cursor.
type Stack struct {
	mu        sync.Mutex
	units     []ports.Unit
	cursor    int
	depth     int
	replaying bool
	discarded int
	logger    *slog.Logger
}

// Option configures the Stack.
type Option func(*Stack)

// WithDepth bounds the number of units kept. Values below one select DefaultDepth.
func WithDepth(depth int) Option {
	return func(s *Stack) {
		if depth > 0 {
			s.depth = depth
		}
	}
}

// WithLogger sets the structured logger for the stack.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stack) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStack creates an empty history.
func NewStack(opts ...Option) *Stack {
	s := &Stack{
		depth:  DefaultDepth,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddUndoUnit implements ports.UnitSink.
func (s *Stack) AddUndoUnit(ctx context.Context, u ports.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor < len(s.units) {
		s.units = s.units[:s.cursor]
	}
	s.units = append(s.units, u)
	if len(s.units) > s.depth {
		s.units = s.units[len(s.units)-s.depth:]
	}
	s.cursor = len(s.units)
	s.logger.DebugContext(ctx, "history recorded unit", "unit", u.Name(), "size", len(s.units))
}

// DiscardUndoUnit implements ports.UnitSink.
func (s *Stack) DiscardUndoUnit(ctx context.Context, u ports.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discarded++
	s.logger.DebugContext(ctx, "history discarded unit", "unit", u.Name())
}

// Undo reverts the most recent done unit. It returns false when there is nothing to undo.
// A failed replay leaves the unit in place.
func (s *Stack) Undo(ctx context.Context) (bool, error) {
	return s.replay(ctx, true)
}

// Redo reapplies the most recently undone unit. It returns false when there is nothing to redo.
func (s *Stack) Redo(ctx context.Context) (bool, error) {
	return s.replay(ctx, false)
}

func (s *Stack) replay(ctx context.Context, undo bool) (bool, error) {
	s.mu.Lock()
	if s.replaying {
		s.mu.Unlock()
		return false, ErrReplayInProgress
	}
	idx := s.cursor
	if undo {
		idx--
	}
	if idx < 0 || idx >= len(s.units) {
		s.mu.Unlock()
		return false, nil
	}
	u := s.units[idx]
	s.replaying = true
	s.mu.Unlock()

	// The lock is not held while replaying: replay raises notifications whose listeners
	// may inspect the stack.
	err := u.Undo(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaying = false
	if err != nil {
		verb := "redo"
		if undo {
			verb = "undo"
		}
		return false, fmt.Errorf("%s %q: %w", verb, u.Name(), err)
	}
	if undo {
		s.cursor = idx
	} else {
		s.cursor = idx + 1
	}
	return true, nil
}

// CanUndo reports whether a unit can be undone.
func (s *Stack) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor > 0
}

// CanRedo reports whether a unit can be redone.
func (s *Stack) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor < len(s.units)
}

// Entries lists the units oldest first.
func (s *Stack) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.units))
	for i, u := range s.units {
		out[i] = Entry{ID: u.ID(), Name: u.Name(), Undone: i >= s.cursor}
	}
	return out
}

// Len returns the number of units kept.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

// Discarded returns how many units were reported as never replayable.
func (s *Stack) Discarded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}

// Clear drops the whole history.
func (s *Stack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = nil
	s.cursor = 0
}
