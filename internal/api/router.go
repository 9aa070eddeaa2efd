package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apiMiddleware "github.com/phrazzld/llmbatch/internal/api/middleware"
)

// NewRouter creates the status router. metrics may be nil, in which case
// /metrics is not registered.
func NewRouter(h *StatusHandler, metrics http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(logger))

	r.Get("/health", h.Health)
	r.Get("/progress", h.Progress)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}
