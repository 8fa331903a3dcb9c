package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stepfunnel/analytics-platform/pkg/rpctypes"
)

// fakeLive answers the collector RPC without a network.
type fakeLive struct {
	stats rpctypes.LiveStatsResponse
	err   error
}

func (f *fakeLive) Call(method string, params any, result any) error {
	if f.err != nil {
		return f.err
	}
	if method != "Recorder.LiveStats" {
		return errors.New("unknown method: " + method)
	}
	*(result.(*rpctypes.LiveStatsResponse)) = f.stats
	return nil
}

func get(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestLiveStats(t *testing.T) {
	h := New(nil, nil, nil, &fakeLive{stats: rpctypes.LiveStatsResponse{
		ActiveSessions:  3,
		SessionsStarted: 17,
	}}, nil, Config{})

	w := get(h.LiveStats, "/api/v1/live")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp rpctypes.LiveStatsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ActiveSessions != 3 || resp.SessionsStarted != 17 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestLiveStatsCollectorDown(t *testing.T) {
	h := New(nil, nil, nil, &fakeLive{err: errors.New("connection refused")}, nil, Config{})
	if w := get(h.LiveStats, "/api/v1/live"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestLiveStatsUnconfigured(t *testing.T) {
	h := New(nil, nil, nil, nil, nil, Config{})
	if w := get(h.LiveStats, "/api/v1/live"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestListSessionsByReasonRejectsUnknownReason(t *testing.T) {
	h := New(nil, nil, nil, nil, nil, Config{})
	if w := get(h.ListSessionsByReason, "/api/v1/sessions/by-reason?reason=bored"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListSessionsInRangeRequiresBounds(t *testing.T) {
	h := New(nil, nil, nil, nil, nil, Config{})

	tests := []string{
		"/api/v1/sessions/range",
		"/api/v1/sessions/range?from=2026-08-01",
		"/api/v1/sessions/range?from=bogus&to=2026-08-02",
	}
	for _, target := range tests {
		if w := get(h.ListSessionsInRange, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, w.Code)
		}
	}
}

func TestParseTime(t *testing.T) {
	if tm, err := parseTime(""); err != nil || !tm.IsZero() {
		t.Errorf("empty input should be zero time, got %v %v", tm, err)
	}
	if tm, err := parseTime("2026-08-14"); err != nil || tm.Day() != 14 {
		t.Errorf("date parse: %v %v", tm, err)
	}
	if tm, err := parseTime("2026-08-14T10:30:00Z"); err != nil || tm.Hour() != 10 {
		t.Errorf("rfc3339 parse: %v %v", tm, err)
	}
	if _, err := parseTime("not a time"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestPageSizeClamped(t *testing.T) {
	h := New(nil, nil, nil, nil, nil, Config{DefaultPageSize: 20, MaxPageSize: 100})

	tests := []struct {
		target string
		want   int
	}{
		{"/api/v1/sessions", 20},
		{"/api/v1/sessions?page_size=50", 50},
		{"/api/v1/sessions?page_size=9999", 100},
		{"/api/v1/sessions?page_size=-1", 20},
		{"/api/v1/sessions?page_size=abc", 20},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.target, nil)
		if got := h.pageSize(req); got != tt.want {
			t.Errorf("%s: pageSize = %d, want %d", tt.target, got, tt.want)
		}
	}
}

func TestCSVFilenameUsesCurrentDate(t *testing.T) {
	h := New(nil, nil, nil, nil, nil, Config{})
	h.nowFn = func() time.Time { return time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC) }

	w := httptest.NewRecorder()
	h.csvHeaders(w, "sessions-2026-02-03.csv")
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="sessions-2026-02-03.csv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
}
