package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stepfunnel/analytics-platform/internal/funnel"
)

type fakeFeeder struct {
	sessions []funnel.Session
	events   []funnel.StepEvent
	err      error
	calls    int
}

func (f *fakeFeeder) ListAllSessions(_ context.Context, from, to time.Time) ([]funnel.Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if from.IsZero() && to.IsZero() {
		return f.sessions, nil
	}
	var out []funnel.Session
	for _, s := range f.sessions {
		if !from.IsZero() && s.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && s.CreatedAt.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeFeeder) ListAllStepEvents(context.Context) ([]funnel.StepEvent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func TestServiceSummaryWithoutCache(t *testing.T) {
	feeder := &fakeFeeder{sessions: []funnel.Session{
		{ID: "a", ExitReason: funnel.ExitCompleted, TimeSpentSec: 100},
		{ID: "b", ExitReason: funnel.ExitAbandoned, CurrentStep: 1, TimeSpentSec: 20},
	}}
	svc := NewService(feeder, nil)

	summary, err := svc.Summary(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalSessions != 2 || summary.ConversionRate != 50 {
		t.Errorf("summary = %+v, want 2 sessions at 50%% conversion", summary)
	}
}

func TestServiceSummaryDateBounded(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	feeder := &fakeFeeder{sessions: []funnel.Session{
		{ID: "old", CreatedAt: base.AddDate(0, 0, -10), ExitReason: funnel.ExitCompleted},
		{ID: "new", CreatedAt: base, ExitReason: funnel.ExitAbandoned},
	}}
	svc := NewService(feeder, nil)

	summary, err := svc.Summary(context.Background(), base.AddDate(0, 0, -1), base.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalSessions != 1 || summary.AbandonedSessions != 1 {
		t.Errorf("summary = %+v, want only the in-range session", summary)
	}
}

func TestServicePropagatesFeederError(t *testing.T) {
	feeder := &fakeFeeder{err: errors.New("postgres down")}
	svc := NewService(feeder, nil)

	if _, err := svc.Summary(context.Background(), time.Time{}, time.Time{}); err == nil {
		t.Error("Summary should propagate store errors")
	}
	if _, err := svc.StepStats(context.Background()); err == nil {
		t.Error("StepStats should propagate store errors")
	}
}

func TestServiceStepStats(t *testing.T) {
	ten := 10
	feeder := &fakeFeeder{events: []funnel.StepEvent{
		{StepIndex: 0, StepName: "intro", Action: funnel.ActionEnter},
		{StepIndex: 0, StepName: "intro", Action: funnel.ActionExit, TimeSpentSec: &ten},
	}}
	svc := NewService(feeder, nil)

	result, err := svc.StepStats(context.Background())
	if err != nil {
		t.Fatalf("StepStats: %v", err)
	}
	if len(result) != 1 || result[0].DropOffRate != 100 {
		t.Errorf("result = %+v, want one step at 100%% drop-off", result)
	}
}
