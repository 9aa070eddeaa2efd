package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/platform/metrics"
	"github.com/phrazzld/llmbatch/internal/task"
)

func newTestRouter(t *testing.T, progress ProgressSource, m http.Handler) http.Handler {
	t.Helper()
	return NewRouter(NewStatusHandler(progress, nil), m, nil)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestProgress(t *testing.T) {
	tracker := task.NewTracker()
	tracker.RunStarted("run-42", task.Progress{Total: 3})
	tracker.ItemFinished(task.Result{Record: domain.Record{"id": 1}}, task.Progress{})
	tracker.ItemFinished(task.Result{Err: assert.AnError}, task.Progress{})

	router := newTestRouter(t, tracker, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/progress", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp ProgressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "run-42", resp.RunID)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 1, resp.Completed)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 1, resp.Pending)
	assert.False(t, resp.Done)

	tracker.ItemFinished(task.Result{}, task.Progress{})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/progress", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Skipped)
	assert.True(t, resp.Done)
}

func TestProgressWithoutSource(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/progress", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no run in progress")
}

func TestMetricsRoute(t *testing.T) {
	rec := metrics.New()
	rec.RunStarted("run", task.Progress{Total: 7, Pending: 7})

	router := newTestRouter(t, task.NewTracker(), rec.Handler())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "llmbatch_items_total 7")

	// no metrics handler, no route
	router = newTestRouter(t, task.NewTracker(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerLifecycle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), newTestRouter(t, nil, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
