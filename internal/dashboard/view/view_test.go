package view

import (
	"testing"
	"time"

	"github.com/stepfunnel/analytics-platform/internal/dashboard/clientinfo"
	"github.com/stepfunnel/analytics-platform/internal/funnel"
)

const (
	chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/126.0.0.0 Safari/537.36"
	safariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) Version/17.5 Mobile/15E148 Safari/604.1"
	firefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

func fixtureViews() []SessionView {
	base := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	return Build([]funnel.Session{
		{ID: "s1", CreatedAt: base, ClientDescriptor: chromeWindows, CurrentStep: 3, TimeSpentSec: 300, ExitReason: funnel.ExitCompleted},
		{ID: "s2", CreatedAt: base.Add(time.Hour), ClientDescriptor: safariIPhone, CurrentStep: 1, TimeSpentSec: 45, ExitReason: funnel.ExitAbandoned},
		{ID: "s3", CreatedAt: base.Add(2 * time.Hour), ClientDescriptor: firefoxLinux, CurrentStep: 2, TimeSpentSec: 120},
	})
}

func ids(views []SessionView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.ID
	}
	return out
}

func TestFilterByStatus(t *testing.T) {
	got := Filter{Status: funnel.ExitAbandoned}.Apply(fixtureViews())
	if len(got) != 1 || got[0].ID != "s2" {
		t.Errorf("got %v, want [s2]", ids(got))
	}
}

func TestFilterByDevice(t *testing.T) {
	got := Filter{Device: clientinfo.DeviceMobile}.Apply(fixtureViews())
	if len(got) != 1 || got[0].ID != "s2" {
		t.Errorf("got %v, want [s2]", ids(got))
	}
}

func TestFilterBySearch(t *testing.T) {
	tests := []struct {
		search string
		want   []string
	}{
		{"s1", []string{"s1"}},
		{"firefox", []string{"s3"}},    // classified browser
		{"ios", []string{"s2"}},        // classified OS
		{"WINDOWS", []string{"s1"}},    // case-insensitive, raw descriptor
		{"no such thing", []string{}},  // no match
		{"", []string{"s1", "s2", "s3"}},
	}
	for _, tt := range tests {
		got := Filter{Search: tt.search}.Apply(fixtureViews())
		if len(got) != len(tt.want) {
			t.Errorf("search %q: got %v, want %v", tt.search, ids(got), tt.want)
			continue
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("search %q: got %v, want %v", tt.search, ids(got), tt.want)
				break
			}
		}
	}
}

func TestFilterConjunction(t *testing.T) {
	// Status and device must both hold.
	got := Filter{Status: funnel.ExitCompleted, Device: clientinfo.DeviceMobile}.Apply(fixtureViews())
	if len(got) != 0 {
		t.Errorf("got %v, want no rows", ids(got))
	}
}

func TestSortByDurationReverses(t *testing.T) {
	views := fixtureViews()

	Sort(views, SortByDuration, false)
	asc := ids(views)

	Sort(views, SortByDuration, true)
	desc := ids(views)

	for i := range asc {
		if asc[i] != desc[len(desc)-1-i] {
			t.Fatalf("descending order %v is not the reverse of ascending %v", desc, asc)
		}
	}
	if asc[0] != "s2" || asc[2] != "s1" {
		t.Errorf("ascending duration order = %v, want [s2 s3 s1]", asc)
	}
}

func TestSortByStep(t *testing.T) {
	views := fixtureViews()
	Sort(views, SortByStep, true)
	if got := ids(views); got[0] != "s1" {
		t.Errorf("step descending should start with s1, got %v", got)
	}
}

func TestSortUnknownKeyFallsBackToDate(t *testing.T) {
	views := fixtureViews()
	Sort(views, SortKey("bogus"), false)
	if got := ids(views); got[0] != "s1" || got[2] != "s3" {
		t.Errorf("date ascending order = %v, want [s1 s2 s3]", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0s"},
		{45, "45s"},
		{60, "1m 0s"},
		{125, "2m 5s"},
		{3599, "59m 59s"},
		{3725, "1h 2m"},
		{7200, "2h 0m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
