// Package view prepares fetched sessions for display: it classifies client
// descriptors, applies the dashboard's filter predicate, sorts by the
// selected key, and formats durations. Everything operates on in-memory
// slices already loaded by the query layer.
package view

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stepfunnel/analytics-platform/internal/dashboard/clientinfo"
	"github.com/stepfunnel/analytics-platform/internal/funnel"
)

// SessionView is a session plus its classified client info, the row shape
// the tables and CSV export render.
type SessionView struct {
	funnel.Session
	Client clientinfo.Info `json:"client"`
}

// Build wraps each session with its classified client info.
func Build(sessions []funnel.Session) []SessionView {
	views := make([]SessionView, len(sessions))
	for i, s := range sessions {
		views[i] = SessionView{
			Session: s,
			Client:  clientinfo.Classify(s.ClientDescriptor),
		}
	}
	return views
}

// Filter is the dashboard's session filter: a conjunction of a free-text
// search with equality filters on exit status and device class. Zero values
// mean "no constraint".
type Filter struct {
	Search string
	Status funnel.ExitReason
	Device clientinfo.Device
}

// Apply returns the views matching every set predicate. The text search is a
// case-insensitive substring match across session ID, raw descriptor, and
// the classified browser and OS names.
func (f Filter) Apply(views []SessionView) []SessionView {
	out := make([]SessionView, 0, len(views))
	search := strings.ToLower(strings.TrimSpace(f.Search))

	for _, v := range views {
		if f.Status != "" && v.ExitReason != f.Status {
			continue
		}
		if f.Device != "" && v.Client.Device != f.Device {
			continue
		}
		if search != "" && !matchesSearch(v, search) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func matchesSearch(v SessionView, search string) bool {
	for _, field := range []string{
		v.ID,
		v.ClientDescriptor,
		v.Client.Browser,
		v.Client.OS,
	} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// SortKey selects the comparator for Sort.
type SortKey string

const (
	SortByDate     SortKey = "date"
	SortByDuration SortKey = "duration"
	SortByStep     SortKey = "step"
)

// Sort orders views in place by the given key. Unknown keys fall back to
// date. The sort is stable so equal rows keep their fetch order.
func Sort(views []SessionView, key SortKey, descending bool) {
	var less func(a, b SessionView) bool
	switch key {
	case SortByDuration:
		less = func(a, b SessionView) bool { return a.TimeSpentSec < b.TimeSpentSec }
	case SortByStep:
		less = func(a, b SessionView) bool { return a.CurrentStep < b.CurrentStep }
	default:
		less = func(a, b SessionView) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}

	sort.SliceStable(views, func(i, j int) bool {
		if descending {
			return less(views[j], views[i])
		}
		return less(views[i], views[j])
	})
}

// FormatDuration renders a second count for the tables: "45s" under a
// minute, "2m 5s" under an hour, "1h 2m" beyond.
func FormatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
}
