// Package router wires up the collector's routes and applies the middleware
// chain (RequestID → Metrics → CORS → Auth → RateLimit).
package router

import (
	"net/http"

	"github.com/stepfunnel/analytics-platform/internal/auth/apikey"
	"github.com/stepfunnel/analytics-platform/internal/auth/ratelimit"
	colhandler "github.com/stepfunnel/analytics-platform/internal/collector/handler"
	colmw "github.com/stepfunnel/analytics-platform/internal/collector/middleware"
	"github.com/stepfunnel/analytics-platform/pkg/metrics"
	pkgmw "github.com/stepfunnel/analytics-platform/pkg/middleware"
)

// New builds the full collector HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST   /api/v1/sessions               → start a session
//	POST   /api/v1/sessions/{id}/events   → record enter/answer/exit
//	POST   /api/v1/beacon                 → abandonment beacon
//	GET    /health                        → collector health
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → Auth → RateLimit → handler
func New(h *colhandler.Handler, validator *apikey.Validator, limiter *ratelimit.Limiter, defaultLimit int, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	// Health (unauthenticated)
	mux.HandleFunc("GET /health", h.Health)

	// Write API
	mux.HandleFunc("POST /api/v1/sessions", h.StartSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/events", h.RecordEvent)
	mux.HandleFunc("POST /api/v1/beacon", h.Beacon)

	var chain http.Handler = mux
	chain = colmw.RateLimit(limiter, defaultLimit)(chain)
	chain = colmw.Auth(validator)(chain)
	chain = pkgmw.CORS(pkgmw.DefaultCORSConfig())(chain)
	if m != nil {
		chain = pkgmw.Metrics(m)(chain)
	}
	chain = pkgmw.RequestID(chain)

	return chain
}
