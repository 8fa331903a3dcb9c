// Package router wires up the dashboard's routes and applies the middleware
// chain (RequestID → Metrics → Timeout).
package router

import (
	"net/http"
	"time"

	dashhandler "github.com/stepfunnel/analytics-platform/internal/dashboard/handler"
	"github.com/stepfunnel/analytics-platform/pkg/health"
	"github.com/stepfunnel/analytics-platform/pkg/metrics"
	pkgmw "github.com/stepfunnel/analytics-platform/pkg/middleware"
)

// New builds the full dashboard HTTP handler with all routes and middleware.
//
// Route table:
//
//	GET  /                                → overview page (HTML)
//	GET  /sessions/{id}                   → session detail page (HTML)
//	GET  /api/v1/sessions                 → paged sessions
//	GET  /api/v1/sessions/range           → sessions in [from, to]
//	GET  /api/v1/sessions/by-reason       → sessions by exit reason
//	GET  /api/v1/sessions/{id}/events     → session event timeline
//	GET  /api/v1/summary                  → Summary aggregate
//	GET  /api/v1/steps/stats              → per-step statistics
//	GET  /api/v1/live                     → collector live stats (RPC)
//	GET  /api/v1/export/sessions.csv      → sessions CSV download
//	GET  /api/v1/export/steps.csv         → step stats CSV download
//	POST /api/v1/admin/keys               → create collector write key
//	GET  /api/v1/admin/keys               → list collector write keys
//	POST /api/v1/cache/invalidate         → drop cached aggregates
//	GET  /health/live, /health/ready      → probes
func New(h *dashhandler.Handler, checker *health.Checker, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	// HTML pages
	mux.HandleFunc("GET /{$}", h.OverviewPage)
	mux.HandleFunc("GET /sessions/{id}", h.SessionPage)

	// Read API
	mux.HandleFunc("GET /api/v1/sessions", h.ListSessions)
	mux.HandleFunc("GET /api/v1/sessions/range", h.ListSessionsInRange)
	mux.HandleFunc("GET /api/v1/sessions/by-reason", h.ListSessionsByReason)
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", h.ListStepEvents)
	mux.HandleFunc("GET /api/v1/summary", h.Summary)
	mux.HandleFunc("GET /api/v1/steps/stats", h.StepStats)
	mux.HandleFunc("GET /api/v1/live", h.LiveStats)

	// Exports
	mux.HandleFunc("GET /api/v1/export/sessions.csv", h.ExportSessions)
	mux.HandleFunc("GET /api/v1/export/steps.csv", h.ExportSteps)

	// Admin
	mux.HandleFunc("POST /api/v1/admin/keys", h.CreateWriteKey)
	mux.HandleFunc("GET /api/v1/admin/keys", h.ListWriteKeys)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.InvalidateCache)

	// Health
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = pkgmw.Timeout(30 * time.Second)(chain)
	if m != nil {
		chain = pkgmw.Metrics(m)(chain)
	}
	chain = pkgmw.RequestID(chain)

	return chain
}
