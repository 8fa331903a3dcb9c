// Package query fetches sessions and step events from PostgreSQL for the
// dashboard. All methods return errors to the caller (the dashboard logs and
// surfaces them; prior UI state stays intact), unlike the collector's
// best-effort recorder.
package query

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/stepfunnel/analytics-platform/pkg/errors"
	"github.com/stepfunnel/analytics-platform/internal/funnel"
	"github.com/stepfunnel/analytics-platform/pkg/postgres"
	"github.com/stepfunnel/analytics-platform/pkg/tracing"
)

// Store runs read queries against the sessions and step_analytics tables.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a query Store backed by the given database client.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "dashboard-query"),
	}
}

// Page is one page of sessions plus the cursor for the next page.
// NextCursor is empty when the listing is exhausted.
type Page struct {
	Sessions   []funnel.Session `json:"sessions"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

const sessionColumns = `id, created_at, client_descriptor, current_step, answers, time_spent_sec, exit_reason`

// ListSessions returns up to pageSize sessions ordered by creation time
// descending. cursor is the opaque token from a previous page, or empty for
// the first page.
func (s *Store) ListSessions(ctx context.Context, pageSize int, cursor string) (*Page, error) {
	ctx, span := tracing.StartChildSpan(ctx, "query.ListSessions")
	defer span.End()
	span.SetAttr("page_size", pageSize)

	var rows *sql.Rows
	var err error
	if cursor == "" {
		rows, err = s.db.DB.QueryContext(ctx,
			`SELECT `+sessionColumns+` FROM sessions
			 ORDER BY created_at DESC, id DESC LIMIT $1`,
			pageSize+1,
		)
	} else {
		createdAt, id, decodeErr := decodeCursor(cursor)
		if decodeErr != nil {
			return nil, decodeErr
		}
		rows, err = s.db.DB.QueryContext(ctx,
			`SELECT `+sessionColumns+` FROM sessions
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC LIMIT $3`,
			createdAt, id, pageSize+1,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}

	page := &Page{Sessions: sessions}
	if len(sessions) > pageSize {
		page.Sessions = sessions[:pageSize]
		last := page.Sessions[pageSize-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// ListSessionsInRange returns sessions created within [from, to], ordered by
// creation time descending.
func (s *Store) ListSessionsInRange(ctx context.Context, from, to time.Time) ([]funnel.Session, error) {
	ctx, span := tracing.StartChildSpan(ctx, "query.ListSessionsInRange")
	defer span.End()

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE created_at >= $1 AND created_at <= $2
		 ORDER BY created_at DESC, id DESC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions in range: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ListSessionsByExitReason returns up to pageSize sessions with the exact
// exit reason, newest first.
func (s *Store) ListSessionsByExitReason(ctx context.Context, reason funnel.ExitReason, pageSize int) ([]funnel.Session, error) {
	ctx, span := tracing.StartChildSpan(ctx, "query.ListSessionsByExitReason")
	defer span.End()
	span.SetAttr("reason", string(reason))

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE exit_reason = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		string(reason), pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions by exit reason: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ListAllSessions returns every session, optionally bounded to [from, to]
// when either is non-zero. Feeder query for Summarize.
func (s *Store) ListAllSessions(ctx context.Context, from, to time.Time) ([]funnel.Session, error) {
	ctx, span := tracing.StartChildSpan(ctx, "query.ListAllSessions")
	defer span.End()

	q := `SELECT ` + sessionColumns + ` FROM sessions`
	var conds []string
	var args []any
	if !from.IsZero() {
		args = append(args, from)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing all sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// GetSession returns one session by ID, or pkg/errors.ErrSessionNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*funnel.Session, error) {
	ctx, span := tracing.StartChildSpan(ctx, "query.GetSession")
	defer span.End()

	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id,
	)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching session %s: %w", id, err)
	}
	return session, nil
}

// ListStepEvents returns all step events for a session, oldest first.
func (s *Store) ListStepEvents(ctx context.Context, sessionID string) ([]funnel.StepEvent, error) {
	ctx, span := tracing.StartChildSpan(ctx, "query.ListStepEvents")
	defer span.End()

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, session_id, step_index, step_name, action, answers, time_spent_sec, exit_reason, created_at
		 FROM step_analytics
		 WHERE session_id = $1
		 ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing step events: %w", err)
	}
	defer rows.Close()
	return scanStepEvents(rows)
}

// ListAllStepEvents returns every step event. Feeder query for
// StepStatistics.
func (s *Store) ListAllStepEvents(ctx context.Context) ([]funnel.StepEvent, error) {
	ctx, span := tracing.StartChildSpan(ctx, "query.ListAllStepEvents")
	defer span.End()

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, session_id, step_index, step_name, action, answers, time_spent_sec, exit_reason, created_at
		 FROM step_analytics
		 ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing all step events: %w", err)
	}
	defer rows.Close()
	return scanStepEvents(rows)
}

// ---------- row scanning ----------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*funnel.Session, error) {
	var s funnel.Session
	var answers []byte
	var exitReason sql.NullString

	if err := row.Scan(&s.ID, &s.CreatedAt, &s.ClientDescriptor, &s.CurrentStep,
		&answers, &s.TimeSpentSec, &exitReason); err != nil {
		return nil, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &s.Answers); err != nil {
			return nil, fmt.Errorf("decoding answers for session %s: %w", s.ID, err)
		}
	}
	if exitReason.Valid {
		s.ExitReason = funnel.ExitReason(exitReason.String)
	}
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]funnel.Session, error) {
	sessions := make([]funnel.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

func scanStepEvents(rows *sql.Rows) ([]funnel.StepEvent, error) {
	events := make([]funnel.StepEvent, 0)
	for rows.Next() {
		var e funnel.StepEvent
		var answers []byte
		var timeSpent sql.NullInt64
		var exitReason sql.NullString

		if err := rows.Scan(&e.ID, &e.SessionID, &e.StepIndex, &e.StepName, &e.Action,
			&answers, &timeSpent, &exitReason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning step event row: %w", err)
		}
		if len(answers) > 0 {
			if err := json.Unmarshal(answers, &e.Answers); err != nil {
				return nil, fmt.Errorf("decoding answers for event %d: %w", e.ID, err)
			}
		}
		if timeSpent.Valid {
			v := int(timeSpent.Int64)
			e.TimeSpentSec = &v
		}
		if exitReason.Valid {
			e.ExitReason = funnel.ExitReason(exitReason.String)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating step event rows: %w", err)
	}
	return events, nil
}

// ---------- pagination cursor ----------

// encodeCursor packs the keyset position (created_at, id) into an opaque
// base64 token.
func encodeCursor(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor unpacks a cursor token. Malformed tokens map to
// pkg/errors.ErrInvalidCursor so handlers answer 400 rather than 500.
func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", apperrors.ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", apperrors.ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", apperrors.ErrInvalidCursor
	}
	return time.Unix(0, nanos), parts[1], nil
}
