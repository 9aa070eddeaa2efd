package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/llmbatch/internal/api/shared"
	"github.com/phrazzld/llmbatch/internal/platform/logger"
	"github.com/phrazzld/llmbatch/internal/task"
)

// ProgressSource provides the progress of the current run.
// task.Tracker implements it.
type ProgressSource interface {
	RunID() string
	Snapshot() task.Progress
}

// StatusHandler handles the status endpoints.
type StatusHandler struct {
	progress ProgressSource
	logger   *slog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(progress ProgressSource, logger *slog.Logger) *StatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusHandler{
		progress: progress,
		logger:   logger.With(slog.String("component", "status_handler")),
	}
}

// Health handles GET /health.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("failed to write health check response", "error", err)
	}
}

// Progress handles GET /progress.
func (h *StatusHandler) Progress(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "no run in progress")
		return
	}

	runID := h.progress.RunID()
	p := h.progress.Snapshot()
	logger.FromContext(r.Context()).Debug("progress requested", "run_id", runID, "progress", p)

	shared.RespondWithJSON(w, r, http.StatusOK, newProgressResponse(runID, p))
}
