package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stepfunnel/analytics-platform/internal/dashboard/view"
	"github.com/stepfunnel/analytics-platform/internal/funnel"
)

func TestOverviewRenders(t *testing.T) {
	r := New()

	sessions := view.Build([]funnel.Session{
		{
			ID:               "4be0643f-1d98-4f84-9bbd-5e0d2e2468f1",
			CreatedAt:        time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC),
			ClientDescriptor: "Mozilla/5.0 (Windows NT 10.0) Chrome/126.0 Safari/537.36",
			CurrentStep:      2,
			TimeSpentSec:     125,
			ExitReason:       funnel.ExitAbandoned,
		},
	})

	var buf bytes.Buffer
	err := r.Overview(&buf, OverviewData{
		Summary: funnel.Summary{
			TotalSessions:     10,
			CompletedSessions: 4,
			AbandonedSessions: 5,
			ConversionRate:    40,
			AverageTimeSpent:  95.5,
			DropOffByStep:     map[int]int{2: 5},
		},
		Steps: []funnel.StepStats{
			{StepIndex: 0, StepName: "intro", Entrances: 10, Exits: 2, DropOffRate: 20},
		},
		Sessions: sessions,
		Status:   "abandoned",
		Sort:     "duration",
		Dir:      "desc",
	})
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Funnel Analytics", "intro", "2m 5s", "40.0%", "abandoned"} {
		if !strings.Contains(out, want) {
			t.Errorf("overview output missing %q", want)
		}
	}
}

func TestSessionRenders(t *testing.T) {
	r := New()
	ts := 30

	sessions := view.Build([]funnel.Session{{
		ID:               "abc12345-0000",
		CreatedAt:        time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC),
		ClientDescriptor: "Mozilla/5.0 (iPhone) Mobile Safari/604.1",
		Answers:          funnel.AnswerMap{"email": funnel.StringAnswer("a@b.c")},
	}})

	var buf bytes.Buffer
	err := r.Session(&buf, SessionData{
		Session: sessions[0],
		Events: []funnel.StepEvent{
			{StepIndex: 0, StepName: "intro", Action: funnel.ActionEnter, CreatedAt: time.Now()},
			{StepIndex: 0, StepName: "intro", Action: funnel.ActionExit, TimeSpentSec: &ts, ExitReason: funnel.ExitAbandoned, CreatedAt: time.Now()},
		},
	})
	if err != nil {
		t.Fatalf("Session: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"abc12345-0000", "Timeline", "intro", "30s", "a@b.c"} {
		if !strings.Contains(out, want) {
			t.Errorf("session output missing %q", want)
		}
	}
}
