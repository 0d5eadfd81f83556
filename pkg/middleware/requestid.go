package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/pulse/pkg/observability"
)

// RequestIDHeader carries the request correlation id. Incoming ids are
// reused so a caller can trace a request across services; the header is
// echoed on every response.
const RequestIDHeader = "X-Request-ID"

// RequestID attaches a correlation id and the base logger to the request
// context. Handlers recover them through observability.FromContext, which
// stamps log lines with the id.
func RequestID(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			ctx := observability.WithRequestID(r.Context(), requestID)
			ctx = observability.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
