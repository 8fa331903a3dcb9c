package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stepfunnel/analytics-platform/internal/funnel"
	"github.com/stepfunnel/analytics-platform/pkg/kafka"
)

// fakeStore is an in-memory EventStore that records every write.
type fakeStore struct {
	mu        sync.Mutex
	sessions  []*funnel.Session
	events    []*funnel.StepEvent
	finalized map[string]funnel.ExitReason
	failAll   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{finalized: make(map[string]funnel.ExitReason)}
}

func (f *fakeStore) InsertSession(_ context.Context, s *funnel.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("store down")
	}
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeStore) InsertStepEvent(_ context.Context, e *funnel.StepEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("store down")
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeStore) SetCurrentStep(context.Context, string, int) error { return nil }

func (f *fakeStore) MergeAnswers(context.Context, string, funnel.AnswerMap) error { return nil }

func (f *fakeStore) FinalizeSession(_ context.Context, id string, _ int, reason funnel.ExitReason, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized[id] = reason
	return nil
}

func (f *fakeStore) eventsByAction(action funnel.StepAction) []*funnel.StepEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*funnel.StepEvent
	for _, e := range f.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// fakePublisher captures published envelopes.
type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (f *fakePublisher) Publish(_ context.Context, event kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func newTestRecorder(store EventStore, pub Publisher) *Recorder {
	return New(store, pub, nil, time.Hour)
}

func TestStartSessionWritesRecord(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, nil)

	id := rec.StartSession(context.Background(), "Mozilla/5.0")
	if id == "" {
		t.Fatal("expected a session id")
	}
	if len(store.sessions) != 1 {
		t.Fatalf("expected 1 session record, got %d", len(store.sessions))
	}
	s := store.sessions[0]
	if s.CurrentStep != 0 || s.ExitReason != "" {
		t.Errorf("new session should be at step 0 with no exit reason, got step=%d reason=%q", s.CurrentStep, s.ExitReason)
	}
}

func TestStartSessionSurvivesStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failAll = true
	rec := newTestRecorder(store, nil)

	if id := rec.StartSession(context.Background(), "ua"); id == "" {
		t.Error("session id must be returned even when the store write fails")
	}
}

func TestRecordAnswerCarriesElapsedTime(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, nil)

	now := time.Now()
	rec.nowFn = func() time.Time { return now }

	id := rec.StartSession(context.Background(), "ua")
	rec.EnterStep(context.Background(), id, 1, "details")

	now = now.Add(42 * time.Second)
	rec.RecordAnswer(context.Background(), id, 1, "details", funnel.AnswerMap{
		"email": funnel.StringAnswer("a@b.c"),
	})

	answers := store.eventsByAction(funnel.ActionAnswer)
	if len(answers) != 1 {
		t.Fatalf("expected 1 answer event, got %d", len(answers))
	}
	if answers[0].TimeSpentSec == nil || *answers[0].TimeSpentSec != 42 {
		t.Errorf("answer event should carry 42s elapsed, got %v", answers[0].TimeSpentSec)
	}
}

func TestExitStepIsOneShot(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, nil)

	id := rec.StartSession(context.Background(), "ua")
	rec.EnterStep(context.Background(), id, 2, "payment")

	if !rec.ExitStep(context.Background(), id, 2, "payment", funnel.ExitAbandoned) {
		t.Fatal("first exit should be recorded")
	}
	if rec.ExitStep(context.Background(), id, 2, "payment", funnel.ExitAbandoned) {
		t.Fatal("second exit should be suppressed")
	}

	if exits := store.eventsByAction(funnel.ActionExit); len(exits) != 1 {
		t.Errorf("expected exactly 1 exit event, got %d", len(exits))
	}
}

func TestAbandonBothTriggersProduceOneExit(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, nil)

	id := rec.StartSession(context.Background(), "ua")
	rec.EnterStep(context.Background(), id, 1, "details")

	// visibilitychange and pagehide both fire for the same abandonment.
	first := rec.Abandon(context.Background(), id)
	second := rec.Abandon(context.Background(), id)

	if !first || second {
		t.Errorf("first=%v second=%v, want first only", first, second)
	}
	exits := store.eventsByAction(funnel.ActionExit)
	if len(exits) != 1 {
		t.Fatalf("expected exactly 1 exit event, got %d", len(exits))
	}
	if exits[0].ExitReason != funnel.ExitAbandoned {
		t.Errorf("exit reason = %q, want %q", exits[0].ExitReason, funnel.ExitAbandoned)
	}
	if exits[0].StepIndex != 1 {
		t.Errorf("abandon should exit the current step, got %d", exits[0].StepIndex)
	}
}

func TestAbandonUnknownSessionIsNoOp(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, nil)

	if rec.Abandon(context.Background(), "never-seen") {
		t.Error("abandoning an untracked session should be a no-op")
	}
	if len(store.events) != 0 {
		t.Errorf("expected no events, got %d", len(store.events))
	}
}

func TestExitFinalizesSessionWithTotalTime(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, nil)

	now := time.Now()
	rec.nowFn = func() time.Time { return now }

	id := rec.StartSession(context.Background(), "ua")
	rec.EnterStep(context.Background(), id, 0, "intro")
	now = now.Add(90 * time.Second)
	rec.ExitStep(context.Background(), id, 0, "intro", funnel.ExitCompleted)

	if store.finalized[id] != funnel.ExitCompleted {
		t.Errorf("finalized reason = %q, want completed", store.finalized[id])
	}
}

func TestEveryWriteIsPublished(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	rec := newTestRecorder(store, pub)

	id := rec.StartSession(context.Background(), "ua")
	rec.EnterStep(context.Background(), id, 0, "intro")
	rec.ExitStep(context.Background(), id, 0, "intro", funnel.ExitCompleted)

	// session_started + enter event + exit event + session_exited
	pub.mu.Lock()
	count := len(pub.events)
	pub.mu.Unlock()
	if count != 4 {
		t.Errorf("expected 4 published envelopes, got %d", count)
	}
}

func TestEvictIdleDropsStaleSessions(t *testing.T) {
	store := newFakeStore()
	rec := New(store, nil, nil, 10*time.Minute)

	now := time.Now()
	rec.nowFn = func() time.Time { return now }

	id := rec.StartSession(context.Background(), "ua")
	now = now.Add(time.Hour)
	if evicted := rec.evictIdle(); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}

	if state := rec.SessionState(id); state.Tracked {
		t.Error("evicted session should no longer be tracked")
	}
}

func TestLiveStatsCounts(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, nil)

	a := rec.StartSession(context.Background(), "ua")
	rec.StartSession(context.Background(), "ua")
	rec.EnterStep(context.Background(), a, 0, "intro")
	rec.ExitStep(context.Background(), a, 0, "intro", funnel.ExitIneligible)

	stats := rec.LiveStats()
	if stats.SessionsStarted != 2 {
		t.Errorf("sessions started = %d, want 2", stats.SessionsStarted)
	}
	if stats.ActiveSessions != 1 {
		t.Errorf("active sessions = %d, want 1", stats.ActiveSessions)
	}
	// enter + exit events persisted
	if stats.EventsRecorded != 2 {
		t.Errorf("events recorded = %d, want 2", stats.EventsRecorded)
	}
}
