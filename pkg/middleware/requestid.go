package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/stepfunnel/analytics-platform/pkg/logger"
)

type requestIDKey struct{}

// RequestID assigns each request a unique ID, taken from the X-Request-ID
// header when the client supplies one. The ID is stored in the request
// context, attached to the context logger, and echoed in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = logger.WithRequestID(ctx, id)
		w.Header().Set("X-Request-ID", id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from ctx, or "" if none was set.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
