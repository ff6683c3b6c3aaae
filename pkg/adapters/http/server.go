package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/history"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Editor is the undo surface the server drives.
type Editor interface {
	Undo(ctx context.Context) (bool, error)
	Redo(ctx context.Context) (bool, error)
	CanUndo() bool
	CanRedo() bool
	History() []history.Entry
}

// Server exposes an editor and its graph over HTTP.
// Requests are serialized: neither the graph nor the engine is safe for concurrent use.
type Server struct {
	mu       sync.Mutex
	editor   Editor
	graph    *memory.Graph
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics exposes gatherer on GET /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithLogger sets the structured logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// HistoryResponse is the body of GET /history and of undo/redo responses.
type HistoryResponse struct {
	Applied bool            `json:"applied"`
	CanUndo bool            `json:"can_undo"`
	CanRedo bool            `json:"can_redo"`
	Entries []history.Entry `json:"entries"`
}

// NewHandler creates a new HTTP handler for the editor.
func NewHandler(editor Editor, graph *memory.Graph, opts ...Option) http.Handler {
	s := &Server{
		editor: editor,
		graph:  graph,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/history", s.GetHistory)
	r.Post("/undo", s.PostUndo)
	r.Post("/redo", s.PostRedo)
	r.Route("/components", func(r chi.Router) {
		r.Get("/", s.GetComponents)
		r.Patch("/{name}", s.PatchComponent)
		r.Delete("/{name}", s.DeleteComponent)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// GetHistory handles GET /history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.logger, http.StatusOK, s.historyResponse(false))
}

// PostUndo handles POST /undo.
func (s *Server) PostUndo(w http.ResponseWriter, r *http.Request) {
	s.replay(w, r, s.editor.Undo)
}

// PostRedo handles POST /redo.
func (s *Server) PostRedo(w http.ResponseWriter, r *http.Request) {
	s.replay(w, r, s.editor.Redo)
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request, fn func(context.Context) (bool, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied, err := fn(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, s.historyResponse(applied))
}

// GetComponents handles GET /components.
func (s *Server) GetComponents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.logger, http.StatusOK, s.graph.Dump())
}

// PatchComponent handles PATCH /components/{name}. The body is a JSON object of properties;
// a missing component is created. All properties change in one transaction.
func (s *Server) PatchComponent(w http.ResponseWriter, r *http.Request) {
	var props map[string]any
	if err := json.NewDecoder(r.Body).Decode(&props); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PatchComponent: Invalid request body", "error", err)
		return
	}
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := r.Context()
	c, ok := s.graph.Get(name)
	if !ok {
		if _, err := s.graph.Add(ctx, name, props); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, s.logger, http.StatusCreated, s.historyResponse(true))
		return
	}

	tx := s.graph.Begin(ctx, fmt.Sprintf("Edit %s", name))
	for k, v := range props {
		if err := s.graph.Set(ctx, c, k, v); err != nil {
			if cerr := tx.Cancel(ctx); cerr != nil {
				s.logger.Error("failed to cancel edit transaction", "component", name, "err", cerr)
			}
			s.fail(w, err)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, s.historyResponse(true))
}

// DeleteComponent handles DELETE /components/{name}.
func (s *Server) DeleteComponent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := chi.URLParam(r, "name")
	c, ok := s.graph.Get(name)
	if !ok {
		s.fail(w, fmt.Errorf("%w: %s", domain.ErrComponentNotFound, name))
		return
	}
	if err := s.graph.Remove(r.Context(), c); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, s.historyResponse(true))
}

func (s *Server) historyResponse(applied bool) HistoryResponse {
	return HistoryResponse{
		Applied: applied,
		CanUndo: s.editor.CanUndo(),
		CanRedo: s.editor.CanRedo(),
		Entries: s.editor.History(),
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrComponentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCheckoutDenied),
		errors.Is(err, domain.ErrDuplicateName),
		errors.Is(err, history.ErrReplayInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}
