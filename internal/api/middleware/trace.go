package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/llmbatch/internal/api/shared"
	"github.com/phrazzld/llmbatch/internal/platform/logger"
)

// NewTraceMiddleware returns middleware that adds a trace ID to the request
// context and stores a logger carrying it for downstream handlers.
// It should be applied early in the middleware chain.
func NewTraceMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			reqLog := log.With(slog.String("trace_id", shared.GetTraceID(ctx)))

			reqLog.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, reqLog)))
		})
	}
}
