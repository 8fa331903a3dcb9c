package stats

import (
	"testing"

	"github.com/stepfunnel/analytics-platform/internal/funnel"
)

func intp(v int) *int { return &v }

func TestConversionRate(t *testing.T) {
	tests := []struct {
		completed, total int
		want             float64
	}{
		{0, 0, 0},
		{5, 10, 50},
		{10, 10, 100},
		{1, 3, 100.0 / 3.0},
	}
	for _, tt := range tests {
		if got := ConversionRate(tt.completed, tt.total); got != tt.want {
			t.Errorf("ConversionRate(%d, %d) = %v, want %v", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestDropOffRate(t *testing.T) {
	tests := []struct {
		exits, entrances int
		want             float64
	}{
		{0, 0, 0},
		{5, 0, 0},
		{1, 4, 25},
		{4, 4, 100},
	}
	for _, tt := range tests {
		if got := DropOffRate(tt.exits, tt.entrances); got != tt.want {
			t.Errorf("DropOffRate(%d, %d) = %v, want %v", tt.exits, tt.entrances, got, tt.want)
		}
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalSessions != 0 || s.CompletedSessions != 0 || s.AbandonedSessions != 0 {
		t.Errorf("counts should be zero: %+v", s)
	}
	if s.AverageTimeSpent != 0 || s.ConversionRate != 0 {
		t.Errorf("rates should be zero, not NaN: avg=%v conv=%v", s.AverageTimeSpent, s.ConversionRate)
	}
	if len(s.DropOffByStep) != 0 {
		t.Errorf("drop-off map should be empty: %v", s.DropOffByStep)
	}
}

func TestSummarize(t *testing.T) {
	sessions := []funnel.Session{
		{ID: "a", ExitReason: funnel.ExitCompleted, TimeSpentSec: 120, CurrentStep: 5},
		{ID: "b", ExitReason: funnel.ExitAbandoned, TimeSpentSec: 30, CurrentStep: 2},
		{ID: "c", ExitReason: funnel.ExitAbandoned, TimeSpentSec: 60, CurrentStep: 2},
		{ID: "d", ExitReason: funnel.ExitIneligible, TimeSpentSec: 10, CurrentStep: 1},
		{ID: "e", TimeSpentSec: 0, CurrentStep: 0}, // still active
	}

	s := Summarize(sessions)

	if s.TotalSessions != 5 {
		t.Errorf("total = %d, want 5", s.TotalSessions)
	}
	if s.CompletedSessions != 1 {
		t.Errorf("completed = %d, want 1", s.CompletedSessions)
	}
	if s.AbandonedSessions != 2 {
		t.Errorf("abandoned = %d, want 2", s.AbandonedSessions)
	}
	if want := 220.0 / 5.0; s.AverageTimeSpent != want {
		t.Errorf("average time = %v, want %v", s.AverageTimeSpent, want)
	}
	if s.ConversionRate != 20 {
		t.Errorf("conversion rate = %v, want 20", s.ConversionRate)
	}
	if s.DropOffByStep[2] != 2 {
		t.Errorf("drop-off at step 2 = %d, want 2", s.DropOffByStep[2])
	}
	if _, present := s.DropOffByStep[1]; present {
		t.Error("ineligible sessions must not count as drop-offs")
	}
}

func TestStepStatistics(t *testing.T) {
	events := []funnel.StepEvent{
		{StepIndex: 0, StepName: "intro", Action: funnel.ActionEnter},
		{StepIndex: 0, StepName: "intro", Action: funnel.ActionEnter},
		{StepIndex: 0, StepName: "intro", Action: funnel.ActionEnter},
		{StepIndex: 0, StepName: "intro", Action: funnel.ActionAnswer, TimeSpentSec: intp(10)},
		{StepIndex: 0, StepName: "intro", Action: funnel.ActionExit, TimeSpentSec: intp(20)},
		{StepIndex: 1, StepName: "details", Action: funnel.ActionEnter},
		{StepIndex: 1, StepName: "details", Action: funnel.ActionAnswer, TimeSpentSec: intp(30)},
	}

	result := StepStatistics(events)
	if len(result) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(result))
	}

	step0 := result[0]
	if step0.StepIndex != 0 || step0.StepName != "intro" {
		t.Errorf("first step = %d %q, want 0 intro", step0.StepIndex, step0.StepName)
	}
	if step0.Entrances != 3 || step0.Exits != 1 {
		t.Errorf("step 0 entrances=%d exits=%d, want 3/1", step0.Entrances, step0.Exits)
	}
	if want := 1.0 / 3.0 * 100; step0.DropOffRate != want {
		t.Errorf("step 0 drop-off = %v, want %v", step0.DropOffRate, want)
	}
	// Mean over every present time_spent value: (10+20)/2.
	if step0.AverageTimeSpent != 15 {
		t.Errorf("step 0 average time = %v, want 15", step0.AverageTimeSpent)
	}

	step1 := result[1]
	if step1.DropOffRate != 0 {
		t.Errorf("step 1 drop-off = %v, want 0", step1.DropOffRate)
	}
	if step1.AverageTimeSpent != 30 {
		t.Errorf("step 1 average time = %v, want 30", step1.AverageTimeSpent)
	}
}

func TestStepStatisticsNoEntrances(t *testing.T) {
	// Exit events for a step nothing entered (restarted collector): rate 0.
	events := []funnel.StepEvent{
		{StepIndex: 3, StepName: "payment", Action: funnel.ActionExit, TimeSpentSec: intp(5)},
	}
	result := StepStatistics(events)
	if len(result) != 1 {
		t.Fatalf("expected 1 step, got %d", len(result))
	}
	if result[0].DropOffRate != 0 {
		t.Errorf("drop-off = %v, want 0 with no entrances", result[0].DropOffRate)
	}
}

func TestStepStatisticsSorted(t *testing.T) {
	events := []funnel.StepEvent{
		{StepIndex: 4, Action: funnel.ActionEnter},
		{StepIndex: 0, Action: funnel.ActionEnter},
		{StepIndex: 2, Action: funnel.ActionEnter},
	}
	result := StepStatistics(events)
	for i := 1; i < len(result); i++ {
		if result[i-1].StepIndex >= result[i].StepIndex {
			t.Fatalf("steps not sorted ascending: %v", result)
		}
	}
}
