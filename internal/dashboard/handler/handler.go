// Package handler implements the dashboard's HTTP endpoints: the JSON API,
// the HTML admin pages, CSV exports, write-key administration, and the live
// recorder stats proxied from the collector over RPC.
//
// Read failures follow the dashboard error tier: log, return the error
// status, leave whatever the client already rendered intact. There is no
// retry.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/stepfunnel/analytics-platform/internal/auth/apikey"
	"github.com/stepfunnel/analytics-platform/internal/dashboard/clientinfo"
	"github.com/stepfunnel/analytics-platform/internal/dashboard/export"
	"github.com/stepfunnel/analytics-platform/internal/dashboard/query"
	"github.com/stepfunnel/analytics-platform/internal/dashboard/stats"
	"github.com/stepfunnel/analytics-platform/internal/dashboard/ui"
	"github.com/stepfunnel/analytics-platform/internal/dashboard/view"
	"github.com/stepfunnel/analytics-platform/internal/funnel"
	apperrors "github.com/stepfunnel/analytics-platform/pkg/errors"
	"github.com/stepfunnel/analytics-platform/pkg/logger"
	"github.com/stepfunnel/analytics-platform/pkg/metrics"
	"github.com/stepfunnel/analytics-platform/pkg/rpctypes"
	"github.com/stepfunnel/analytics-platform/pkg/tracing"
)

// LiveStatsClient is the RPC surface to the collector. The production
// implementation is pkg/grpc.Client; tests substitute a fake.
type LiveStatsClient interface {
	Call(method string, params any, result any) error
}

// Config holds the handler's paging limits.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Handler serves the dashboard API and pages.
type Handler struct {
	store    *query.Store
	service  *stats.Service
	renderer *ui.Renderer
	keys     *apikey.Validator
	live     LiveStatsClient
	metrics  *metrics.Metrics
	cfg      Config
	nowFn    func() time.Time
}

// New creates a dashboard Handler. live, keys, and m may be nil; the
// corresponding endpoints answer 503 or skip metric updates.
func New(store *query.Store, service *stats.Service, keys *apikey.Validator, live LiveStatsClient, m *metrics.Metrics, cfg Config) *Handler {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	return &Handler{
		store:    store,
		service:  service,
		renderer: ui.New(),
		keys:     keys,
		live:     live,
		metrics:  m,
		cfg:      cfg,
		nowFn:    time.Now,
	}
}

// ---------- HTML pages ----------

// OverviewPage handles GET /. It renders the summary cards, step table, and
// the filtered/sorted session table. Filter and sort state arrives as query
// parameters so the page is bookmarkable.
func (h *Handler) OverviewPage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "dashboard.overview", uuid.New().String())
	defer span.End()

	summary, err := h.service.Summary(ctx, time.Time{}, time.Time{})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	steps, err := h.service.StepStats(ctx)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	pageSize := h.pageSize(r)
	page, err := h.store.ListSessions(ctx, pageSize, r.URL.Query().Get("cursor"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	q := r.URL.Query()
	views := h.applyViewParams(page.Sessions, r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = h.renderer.Overview(w, ui.OverviewData{
		Summary:    summary,
		Steps:      steps,
		Sessions:   views,
		NextCursor: page.NextCursor,
		Search:     q.Get("search"),
		Status:     q.Get("status"),
		Device:     q.Get("device"),
		Sort:       orDefault(q.Get("sort"), "date"),
		Dir:        orDefault(q.Get("dir"), "desc"),
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to render overview", "error", err)
	}
}

// SessionPage handles GET /sessions/{id}: the event timeline for one session.
func (h *Handler) SessionPage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "dashboard.session", uuid.New().String())
	defer span.End()

	id := r.PathValue("id")
	session, err := h.store.GetSession(ctx, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	events, err := h.store.ListStepEvents(ctx, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = h.renderer.Session(w, ui.SessionData{
		Session: view.Build([]funnel.Session{*session})[0],
		Events:  events,
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to render session page", "error", err)
	}
}

// ---------- JSON API ----------

// ListSessions handles GET /api/v1/sessions with paging, filter, and sort
// query parameters.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	page, err := h.store.ListSessions(r.Context(), h.pageSize(r), r.URL.Query().Get("cursor"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"sessions":    h.applyViewParams(page.Sessions, r),
		"next_cursor": page.NextCursor,
	})
}

// ListSessionsInRange handles GET /api/v1/sessions/range?from&to with
// RFC 3339 or YYYY-MM-DD bounds.
func (h *Handler) ListSessionsInRange(w http.ResponseWriter, r *http.Request) {
	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid 'from' time")
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid 'to' time")
		return
	}
	if from.IsZero() || to.IsZero() {
		h.writeError(w, http.StatusBadRequest, "'from' and 'to' are required")
		return
	}

	sessions, err := h.store.ListSessionsInRange(r.Context(), from, to)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sessions": view.Build(sessions)})
}

// ListSessionsByReason handles GET /api/v1/sessions/by-reason?reason&page_size.
func (h *Handler) ListSessionsByReason(w http.ResponseWriter, r *http.Request) {
	reason := funnel.ExitReason(r.URL.Query().Get("reason"))
	if !reason.Valid() {
		h.writeError(w, http.StatusBadRequest, "reason must be completed, abandoned, or ineligible")
		return
	}

	sessions, err := h.store.ListSessionsByExitReason(r.Context(), reason, h.pageSize(r))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sessions": view.Build(sessions)})
}

// ListStepEvents handles GET /api/v1/sessions/{id}/events.
func (h *Handler) ListStepEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.ListStepEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// Summary handles GET /api/v1/summary?from&to (both optional).
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid 'from' time")
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid 'to' time")
		return
	}

	summary, err := h.service.Summary(r.Context(), from, to)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// StepStats handles GET /api/v1/steps/stats.
func (h *Handler) StepStats(w http.ResponseWriter, r *http.Request) {
	steps, err := h.service.StepStats(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

// LiveStats handles GET /api/v1/live: the collector's in-memory recorder
// counters fetched over RPC.
func (h *Handler) LiveStats(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		h.writeError(w, http.StatusServiceUnavailable, "live stats not configured")
		return
	}

	var resp rpctypes.LiveStatsResponse
	if err := h.live.Call("Recorder.LiveStats", &rpctypes.LiveStatsRequest{}, &resp); err != nil {
		logger.FromContext(r.Context()).Error("live stats rpc failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "collector unreachable")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ---------- CSV exports ----------

// ExportSessions handles GET /api/v1/export/sessions.csv. The download is
// the current filter/sort view of all sessions.
func (h *Handler) ExportSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListAllSessions(r.Context(), time.Time{}, time.Time{})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	views := h.applyViewParams(sessions, r)

	h.csvHeaders(w, export.Filename("sessions", h.nowFn()))
	if err := export.WriteSessions(w, views); err != nil {
		logger.FromContext(r.Context()).Error("failed to write sessions csv", "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.ExportsTotal.WithLabelValues("sessions").Inc()
	}
}

// ExportSteps handles GET /api/v1/export/steps.csv.
func (h *Handler) ExportSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := h.service.StepStats(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	h.csvHeaders(w, export.Filename("steps", h.nowFn()))
	if err := export.WriteStepStats(w, steps); err != nil {
		logger.FromContext(r.Context()).Error("failed to write steps csv", "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.ExportsTotal.WithLabelValues("steps").Inc()
	}
}

// ---------- Admin ----------

// CreateWriteKey handles POST /api/v1/admin/keys: creates a collector write
// key and returns the raw key (shown once).
func (h *Handler) CreateWriteKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		RateLimit int    `json:"rate_limit"`
		ExpiresIn string `json:"expires_in,omitempty"` // Go duration, e.g. "720h"
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = 600
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid expires_in duration")
			return
		}
		t := h.nowFn().Add(d)
		expiresAt = &t
	}

	rawKey, err := h.keys.CreateKey(r.Context(), req.Name, req.RateLimit, expiresAt)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"key":        rawKey,
		"name":       req.Name,
		"rate_limit": req.RateLimit,
	})
}

// ListWriteKeys handles GET /api/v1/admin/keys.
func (h *Handler) ListWriteKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListKeys(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// InvalidateCache handles POST /api/v1/cache/invalidate.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.service.InvalidateCache(r.Context()); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// ---------- helpers ----------

// applyViewParams builds session views and applies the filter/sort query
// parameters shared by the page, API, and export endpoints.
func (h *Handler) applyViewParams(sessions []funnel.Session, r *http.Request) []view.SessionView {
	q := r.URL.Query()
	views := view.Filter{
		Search: q.Get("search"),
		Status: funnel.ExitReason(q.Get("status")),
		Device: clientinfo.Device(q.Get("device")),
	}.Apply(view.Build(sessions))

	sortKey := view.SortKey(orDefault(q.Get("sort"), string(view.SortByDate)))
	view.Sort(views, sortKey, orDefault(q.Get("dir"), "desc") == "desc")
	return views
}

func (h *Handler) pageSize(r *http.Request) int {
	size := h.cfg.DefaultPageSize
	if v := r.URL.Query().Get("page_size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			size = parsed
		}
	}
	if size > h.cfg.MaxPageSize {
		size = h.cfg.MaxPageSize
	}
	return size
}

func (h *Handler) csvHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Error("dashboard read failed",
		"path", r.URL.Path,
		"error", err,
	)
	status := apperrors.HTTPStatusCode(err)
	h.writeError(w, status, http.StatusText(status))
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Error("page load failed",
		"path", r.URL.Path,
		"error", err,
	)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	http.Error(w, "failed to load data", http.StatusInternalServerError)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithComponent("dashboard-handler").Error("failed to encode response", "error", err)
	}
}

// parseTime accepts RFC 3339 or bare dates; empty input is the zero time.
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
