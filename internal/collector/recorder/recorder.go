// Package recorder implements the session recorder: it tracks live funnel
// sessions in memory, writes session and step-event records through an
// injected store, and publishes every accepted write to Kafka for the mirror.
//
// The recorder is deliberately best-effort. Analytics must never disrupt the
// visitor's form flow, so every store or publish failure is logged, counted,
// and swallowed; no method returns a write error. Event loss is accepted.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stepfunnel/analytics-platform/internal/funnel"
	"github.com/stepfunnel/analytics-platform/pkg/kafka"
	"github.com/stepfunnel/analytics-platform/pkg/metrics"
	"github.com/stepfunnel/analytics-platform/pkg/rpctypes"
)

// EventStore is the persistence surface the recorder writes through. The
// production implementation is collector/store; tests substitute an
// in-memory fake.
type EventStore interface {
	InsertSession(ctx context.Context, session *funnel.Session) error
	InsertStepEvent(ctx context.Context, event *funnel.StepEvent) error
	SetCurrentStep(ctx context.Context, sessionID string, step int) error
	MergeAnswers(ctx context.Context, sessionID string, answers funnel.AnswerMap) error
	FinalizeSession(ctx context.Context, sessionID string, step int, reason funnel.ExitReason, timeSpentSec int) error
}

// Publisher is the Kafka side channel. A nil Publisher disables publishing.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// sessionState is the recorder's live view of one visitor.
type sessionState struct {
	descriptor    string
	currentStep   int
	stepName      string
	startedAt     time.Time
	stepEnteredAt time.Time
	lastSeen      time.Time
	exited        bool
}

// Recorder tracks per-session state and performs all funnel writes.
type Recorder struct {
	store     EventStore
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	idleTTL   time.Duration
	nowFn     func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState

	started   atomic.Int64
	recorded  atomic.Int64
	dropped   atomic.Int64
	startTime time.Time
}

// New creates a Recorder. publisher and m may be nil; idleTTL bounds how long
// an inactive session's state is kept before the janitor evicts it.
func New(store EventStore, publisher Publisher, m *metrics.Metrics, idleTTL time.Duration) *Recorder {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &Recorder{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    slog.Default().With("component", "recorder"),
		idleTTL:   idleTTL,
		nowFn:     time.Now,
		sessions:  make(map[string]*sessionState),
		startTime: time.Now(),
	}
}

// Start launches the idle-session janitor. It returns immediately; the
// janitor stops when ctx is cancelled.
func (r *Recorder) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.idleTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				evicted := r.evictIdle()
				if evicted > 0 {
					r.logger.Info("evicted idle sessions", "count", evicted)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	r.logger.Info("recorder started", "idle_ttl", r.idleTTL)
}

// StartSession creates a new session record at step 0 with no exit reason and
// returns its generated identifier. A failed store write is logged and
// suppressed; the ID is returned regardless so the visitor's form keeps
// working.
func (r *Recorder) StartSession(ctx context.Context, clientDescriptor string) string {
	now := r.nowFn()
	session := &funnel.Session{
		ID:               uuid.New().String(),
		CreatedAt:        now,
		ClientDescriptor: clientDescriptor,
		CurrentStep:      0,
		Answers:          funnel.AnswerMap{},
	}

	if err := r.store.InsertSession(ctx, session); err != nil {
		r.logger.Error("failed to insert session", "session_id", session.ID, "error", err)
		r.observeWriteError("postgres")
	}

	r.mu.Lock()
	r.sessions[session.ID] = &sessionState{
		descriptor:    clientDescriptor,
		startedAt:     now,
		stepEnteredAt: now,
		lastSeen:      now,
	}
	r.mu.Unlock()

	r.started.Add(1)
	if r.metrics != nil {
		r.metrics.SessionsStartedTotal.Inc()
		r.metrics.ActiveSessions.Inc()
	}
	r.publish(ctx, session.ID, funnel.Envelope{Kind: funnel.KindSessionStarted, Session: session})

	r.logger.Debug("session started", "session_id", session.ID)
	return session.ID
}

// EnterStep records a step entrance and resets the session's step timer.
func (r *Recorder) EnterStep(ctx context.Context, sessionID string, step int, name string) {
	now := r.nowFn()

	r.mu.Lock()
	state := r.touch(sessionID, now)
	state.currentStep = step
	state.stepName = name
	state.stepEnteredAt = now
	r.mu.Unlock()

	event := &funnel.StepEvent{
		SessionID: sessionID,
		StepIndex: step,
		StepName:  name,
		Action:    funnel.ActionEnter,
		CreatedAt: now,
	}
	r.writeEvent(ctx, event)

	if err := r.store.SetCurrentStep(ctx, sessionID, step); err != nil {
		r.logger.Error("failed to update current step", "session_id", sessionID, "error", err)
		r.observeWriteError("postgres")
	}
}

// RecordAnswer records an answer event carrying the elapsed time since the
// step was entered, and merges the answers into the session record.
func (r *Recorder) RecordAnswer(ctx context.Context, sessionID string, step int, name string, answers funnel.AnswerMap) {
	now := r.nowFn()

	r.mu.Lock()
	state := r.touch(sessionID, now)
	elapsed := int(now.Sub(state.stepEnteredAt).Seconds())
	r.mu.Unlock()

	event := &funnel.StepEvent{
		SessionID:    sessionID,
		StepIndex:    step,
		StepName:     name,
		Action:       funnel.ActionAnswer,
		Answers:      answers,
		TimeSpentSec: &elapsed,
		CreatedAt:    now,
	}
	r.writeEvent(ctx, event)

	if err := r.store.MergeAnswers(ctx, sessionID, answers); err != nil {
		r.logger.Error("failed to merge answers", "session_id", sessionID, "error", err)
		r.observeWriteError("postgres")
	}
}

// ExitStep records a terminal exit event and finalizes the session record
// with its exit reason and total time spent. The exit is one-shot per
// session: once a session has exited, later exit calls are dropped so the
// visibility-change and unload triggers cannot double-count an abandonment.
// It reports whether the exit was recorded.
func (r *Recorder) ExitStep(ctx context.Context, sessionID string, step int, name string, reason funnel.ExitReason) bool {
	now := r.nowFn()

	r.mu.Lock()
	state := r.touch(sessionID, now)
	if state.exited {
		r.mu.Unlock()
		r.logger.Debug("duplicate exit suppressed", "session_id", sessionID, "reason", reason)
		return false
	}
	state.exited = true
	state.currentStep = step
	stepElapsed := int(now.Sub(state.stepEnteredAt).Seconds())
	totalElapsed := int(now.Sub(state.startedAt).Seconds())
	descriptor := state.descriptor
	startedAt := state.startedAt
	r.mu.Unlock()

	event := &funnel.StepEvent{
		SessionID:    sessionID,
		StepIndex:    step,
		StepName:     name,
		Action:       funnel.ActionExit,
		TimeSpentSec: &stepElapsed,
		ExitReason:   reason,
		CreatedAt:    now,
	}
	r.writeEvent(ctx, event)

	if err := r.store.FinalizeSession(ctx, sessionID, step, reason, totalElapsed); err != nil {
		r.logger.Error("failed to finalize session", "session_id", sessionID, "error", err)
		r.observeWriteError("postgres")
	}

	r.publish(ctx, sessionID, funnel.Envelope{
		Kind: funnel.KindSessionExited,
		Session: &funnel.Session{
			ID:               sessionID,
			CreatedAt:        startedAt,
			ClientDescriptor: descriptor,
			CurrentStep:      step,
			TimeSpentSec:     totalElapsed,
			ExitReason:       reason,
		},
	})

	if r.metrics != nil {
		r.metrics.SessionsExitedTotal.WithLabelValues(string(reason)).Inc()
		r.metrics.ActiveSessions.Dec()
	}
	r.logger.Info("session exited",
		"session_id", sessionID,
		"step", step,
		"reason", reason,
		"time_spent_sec", totalElapsed,
	)
	return true
}

// Abandon is the passive-trigger path for visibility-change and page-unload
// beacons: it exits the session's current step with reason abandoned. Safe to
// call repeatedly; only the first call records an exit. It reports whether an
// exit was recorded.
func (r *Recorder) Abandon(ctx context.Context, sessionID string) bool {
	r.mu.Lock()
	state, ok := r.sessions[sessionID]
	if !ok || state.exited {
		r.mu.Unlock()
		return false
	}
	step := state.currentStep
	name := state.stepName
	r.mu.Unlock()

	return r.ExitStep(ctx, sessionID, step, name, funnel.ExitAbandoned)
}

// LiveStats snapshots the recorder's in-memory counters for the RPC endpoint.
func (r *Recorder) LiveStats() rpctypes.LiveStatsResponse {
	r.mu.Lock()
	active := 0
	for _, s := range r.sessions {
		if !s.exited {
			active++
		}
	}
	r.mu.Unlock()

	return rpctypes.LiveStatsResponse{
		ActiveSessions:  active,
		SessionsStarted: r.started.Load(),
		EventsRecorded:  r.recorded.Load(),
		EventsDropped:   r.dropped.Load(),
		UptimeSeconds:   int64(time.Since(r.startTime).Seconds()),
	}
}

// SessionState reports the recorder's live view of one session for the RPC
// endpoint. Tracked is false when the session was never seen or has been
// evicted.
func (r *Recorder) SessionState(sessionID string) rpctypes.SessionStateResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[sessionID]
	if !ok {
		return rpctypes.SessionStateResponse{}
	}
	return rpctypes.SessionStateResponse{
		Tracked:     true,
		CurrentStep: state.currentStep,
		StepName:    state.stepName,
		EnteredAt:   state.stepEnteredAt.Unix(),
		Exited:      state.exited,
	}
}

// touch returns the state for sessionID, creating a fresh entry when the
// recorder has none (collector restart, or state already evicted). Callers
// must hold r.mu.
func (r *Recorder) touch(sessionID string, now time.Time) *sessionState {
	state, ok := r.sessions[sessionID]
	if !ok {
		state = &sessionState{
			startedAt:     now,
			stepEnteredAt: now,
		}
		r.sessions[sessionID] = state
		if r.metrics != nil {
			r.metrics.ActiveSessions.Inc()
		}
	}
	state.lastSeen = now
	return state
}

// writeEvent persists and publishes a step event, best-effort.
func (r *Recorder) writeEvent(ctx context.Context, event *funnel.StepEvent) {
	if err := r.store.InsertStepEvent(ctx, event); err != nil {
		r.logger.Error("failed to insert step event",
			"session_id", event.SessionID,
			"action", event.Action,
			"step", event.StepIndex,
			"error", err,
		)
		r.observeWriteError("postgres")
	} else {
		r.recorded.Add(1)
	}

	if r.metrics != nil {
		r.metrics.StepEventsTotal.WithLabelValues(string(event.Action)).Inc()
	}
	r.publish(ctx, event.SessionID, funnel.Envelope{Kind: funnel.KindStepEvent, Event: event})
}

func (r *Recorder) publish(ctx context.Context, sessionID string, env funnel.Envelope) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, kafka.Event{Key: sessionID, Value: env}); err != nil {
		r.logger.Error("failed to publish funnel event",
			"session_id", sessionID,
			"kind", env.Kind,
			"error", err,
		)
		r.observeWriteError("kafka")
	}
}

func (r *Recorder) observeWriteError(target string) {
	r.dropped.Add(1)
	if r.metrics != nil {
		r.metrics.RecorderWriteErrors.WithLabelValues(target).Inc()
	}
}

func (r *Recorder) evictIdle() int {
	cutoff := r.nowFn().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, state := range r.sessions {
		if state.lastSeen.Before(cutoff) {
			if !state.exited && r.metrics != nil {
				r.metrics.ActiveSessions.Dec()
			}
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}
