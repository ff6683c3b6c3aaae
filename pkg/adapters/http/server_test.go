package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/rewind"
	rewindhttp "github.com/aretw0/rewind/pkg/adapters/http"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, graphOpts ...memory.Option) (http.Handler, *memory.Graph) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	graph := memory.NewGraph(graphOpts...)
	editor, err := rewind.New(graph, rewind.WithLifecycleHooks(metrics.Hooks()))
	require.NoError(t, err)
	t.Cleanup(editor.Close)

	return rewindhttp.NewHandler(editor, graph, rewindhttp.WithMetrics(reg)), graph
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeHistory(t *testing.T, w *httptest.ResponseRecorder) rewindhttp.HistoryResponse {
	t.Helper()
	var resp rewindhttp.HistoryResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestServer_EditUndoRedo(t *testing.T) {
	h, graph := newServer(t)

	w := do(t, h, http.MethodPatch, "/components/button", `{"label":"OK"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, h, http.MethodPatch, "/components/button", `{"label":"Cancel","width":80}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeHistory(t, w)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "Edit button", resp.Entries[1].Name)

	w = do(t, h, http.MethodPost, "/undo", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeHistory(t, w)
	assert.True(t, resp.Applied)
	assert.True(t, resp.CanRedo)
	assert.True(t, resp.Entries[1].Undone)

	button, ok := graph.Get("button")
	require.True(t, ok)
	assert.Equal(t, "OK", button.Get("label"))
	assert.Nil(t, button.Get("width"))

	w = do(t, h, http.MethodPost, "/redo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Cancel", button.Get("label"))

	w = do(t, h, http.MethodPost, "/redo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeHistory(t, w).Applied)
}

func TestServer_Components(t *testing.T) {
	h, _ := newServer(t)
	do(t, h, http.MethodPatch, "/components/a", `{"n":1}`)

	w := do(t, h, http.MethodGet, "/components/", "")
	require.Equal(t, http.StatusOK, w.Code)
	var dump map[string]map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&dump))
	assert.Equal(t, map[string]map[string]any{"a": {"n": 1.0}}, dump)

	w = do(t, h, http.MethodDelete, "/components/a", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodDelete, "/components/a", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_BadRequest(t *testing.T) {
	h, _ := newServer(t)
	w := do(t, h, http.MethodPatch, "/components/a", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_CheckoutConflict(t *testing.T) {
	table := memory.NewCheckouts()
	h, _ := newServer(t, memory.WithCheckout(table.For("server"), "doc"))
	require.NoError(t, table.For("someone-else").Checkout(context.Background(), "doc"))

	w := do(t, h, http.MethodPatch, "/components/a", `{"n":1}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServer_HistoryHealthAndMetrics(t *testing.T) {
	h, _ := newServer(t)
	do(t, h, http.MethodPatch, "/components/a", `{}`)
	do(t, h, http.MethodPost, "/undo", "")

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeHistory(t, w)
	assert.False(t, resp.CanUndo)
	assert.True(t, resp.CanRedo)

	w = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `rewind_units_total{outcome="committed"} 1`)
	assert.Contains(t, body, `rewind_replays_total{direction="undo",status="ok"} 1`)
}

func TestServer_FailedEditRollsBack(t *testing.T) {
	h, graph := newServer(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPatch, "/components/a", `{"label":"OK"}`).Code)

	w := do(t, h, http.MethodPatch, "/components/a", `{"label":"Cancel","tags":["x"]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	a, ok := graph.Get("a")
	require.True(t, ok)
	assert.Equal(t, "OK", a.Get("label"))
	assert.False(t, graph.InTransaction())

	w = do(t, h, http.MethodGet, "/history", "")
	assert.Len(t, decodeHistory(t, w).Entries, 1)
}
