// Package store persists funnel sessions and step events to PostgreSQL.
//
// It requires the `sessions` and `step_analytics` tables:
//
//	CREATE TABLE sessions (
//	    id                TEXT PRIMARY KEY,
//	    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    client_descriptor TEXT NOT NULL DEFAULT '',
//	    current_step      INT NOT NULL DEFAULT 0,
//	    answers           JSONB NOT NULL DEFAULT '{}',
//	    time_spent_sec    INT NOT NULL DEFAULT 0,
//	    exit_reason       TEXT
//	);
//
//	CREATE TABLE step_analytics (
//	    id             BIGSERIAL PRIMARY KEY,
//	    session_id     TEXT NOT NULL REFERENCES sessions(id),
//	    step_index     INT NOT NULL,
//	    step_name      TEXT NOT NULL,
//	    action         TEXT NOT NULL,
//	    answers        JSONB,
//	    time_spent_sec INT,
//	    exit_reason    TEXT,
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX idx_step_analytics_session ON step_analytics(session_id, created_at);
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stepfunnel/analytics-platform/internal/funnel"
	"github.com/stepfunnel/analytics-platform/pkg/postgres"
)

// Store writes funnel records to PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Store backed by the given database client.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "collector-store"),
	}
}

// InsertSession writes a new session record.
func (s *Store) InsertSession(ctx context.Context, session *funnel.Session) error {
	answers, err := json.Marshal(session.Answers)
	if err != nil {
		return fmt.Errorf("marshaling answers: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, client_descriptor, current_step, answers, time_spent_sec, exit_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.CreatedAt, session.ClientDescriptor,
		session.CurrentStep, answers, session.TimeSpentSec,
		nullableReason(session.ExitReason),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// InsertStepEvent appends an immutable step event row.
func (s *Store) InsertStepEvent(ctx context.Context, event *funnel.StepEvent) error {
	var answers any
	if len(event.Answers) > 0 {
		data, err := json.Marshal(event.Answers)
		if err != nil {
			return fmt.Errorf("marshaling event answers: %w", err)
		}
		answers = data
	}

	var timeSpent sql.NullInt64
	if event.TimeSpentSec != nil {
		timeSpent = sql.NullInt64{Int64: int64(*event.TimeSpentSec), Valid: true}
	}

	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO step_analytics (session_id, step_index, step_name, action, answers, time_spent_sec, exit_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.SessionID, event.StepIndex, event.StepName, event.Action,
		answers, timeSpent, nullableReason(event.ExitReason), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting step event: %w", err)
	}
	return nil
}

// SetCurrentStep advances a session's current step. Monotonicity is a
// convention of well-behaved clients, not enforced here.
func (s *Store) SetCurrentStep(ctx context.Context, sessionID string, step int) error {
	_, err := s.db.DB.ExecContext(ctx,
		`UPDATE sessions SET current_step = $2 WHERE id = $1`,
		sessionID, step,
	)
	if err != nil {
		return fmt.Errorf("updating current step: %w", err)
	}
	return nil
}

// MergeAnswers merges the given answers into the session's answer map using
// JSONB concatenation, overwriting keys that already exist.
func (s *Store) MergeAnswers(ctx context.Context, sessionID string, answers funnel.AnswerMap) error {
	if len(answers) == 0 {
		return nil
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshaling answers: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`UPDATE sessions SET answers = answers || $2::jsonb WHERE id = $1`,
		sessionID, data,
	)
	if err != nil {
		return fmt.Errorf("merging answers: %w", err)
	}
	return nil
}

// FinalizeSession records the terminal state of a session: the step it ended
// on, its exit reason, and the total time spent.
func (s *Store) FinalizeSession(ctx context.Context, sessionID string, step int, reason funnel.ExitReason, timeSpentSec int) error {
	_, err := s.db.DB.ExecContext(ctx,
		`UPDATE sessions SET current_step = $2, exit_reason = $3, time_spent_sec = $4 WHERE id = $1`,
		sessionID, step, string(reason), timeSpentSec,
	)
	if err != nil {
		return fmt.Errorf("finalizing session: %w", err)
	}
	return nil
}

// nullableReason converts an ExitReason to a sql.NullString, treating the
// empty reason as NULL.
func nullableReason(r funnel.ExitReason) sql.NullString {
	if r == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(r), Valid: true}
}
