package middleware

import (
	"net/http"
	"strings"

	"github.com/stepfunnel/analytics-platform/internal/auth/ratelimit"
)

// RateLimit returns middleware that enforces per-write-key rate limits.
// It reads the KeyInfo from context (set by Auth middleware) and uses the
// key's configured rate_limit value, falling back to defaultLimit for keys
// created without one. Requests without a key are passed through (Auth
// rejects them instead).
func RateLimit(limiter *ratelimit.Limiter, defaultLimit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			info := GetKeyInfo(r.Context())
			if info == nil {
				next.ServeHTTP(w, r)
				return
			}

			limit := info.RateLimit
			if limit <= 0 {
				limit = defaultLimit
			}
			if !limiter.Allow(info.ID, limit) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
