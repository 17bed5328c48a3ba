package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/overseer/internal/api/shared"
)

// NewTraceMiddleware returns middleware that adds a trace ID to the request
// context. It should be applied early in the middleware chain to ensure that
// all subsequent handlers have access to the trace ID.
func NewTraceMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Add a trace ID to the context
			ctx := shared.SetTraceID(r.Context())
			traceID := shared.GetTraceID(ctx)

			// Echo the trace ID so clients can correlate their reports
			// with server logs.
			w.Header().Set("X-Trace-ID", traceID)

			log := logger.With(slog.String("trace_id", traceID))
			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			// Continue with the updated context
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
