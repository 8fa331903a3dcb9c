// Package mirror consumes funnel events from Kafka and appends them to a
// spreadsheet. It is a best-effort side channel: appends are retried with
// backoff behind a circuit breaker, and rows that still fail are dropped and
// counted rather than blocking the consumer.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/stepfunnel/analytics-platform/internal/funnel"
	"github.com/stepfunnel/analytics-platform/pkg/config"
	"github.com/stepfunnel/analytics-platform/pkg/kafka"
	"github.com/stepfunnel/analytics-platform/pkg/logger"
	"github.com/stepfunnel/analytics-platform/pkg/metrics"
	"github.com/stepfunnel/analytics-platform/pkg/resilience"
)

// appendTimeout bounds a single Sheets call so a hung request cannot stall
// the consume loop.
const appendTimeout = 15 * time.Second

var sessionHeader = []string{
	"session_id", "created_at", "client_descriptor", "current_step",
	"time_spent_sec", "exit_reason",
}

var stepHeader = []string{
	"session_id", "step_index", "step_name", "action",
	"time_spent_sec", "exit_reason", "answers", "created_at",
}

// RowAppender is the slice of the Sheets client the mirror needs.
type RowAppender interface {
	Append(ctx context.Context, tab string, header []string, row []any) error
}

// Mirror maps consumed envelopes to spreadsheet rows.
type Mirror struct {
	appender RowAppender
	cfg      config.SheetsConfig
	metrics  *metrics.Metrics
	breaker  *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
	dropped  atomic.Int64
	log      *slog.Logger
}

// New builds a Mirror around the given appender. The retry policy is
// deliberately short: sheet appends that fail three times in a row are almost
// always quota or auth problems that more retries cannot fix.
func New(appender RowAppender, cfg config.SheetsConfig, m *metrics.Metrics) *Mirror {
	return &Mirror{
		appender: appender,
		cfg:      cfg,
		metrics:  m,
		breaker:  resilience.NewCircuitBreaker("sheets-append", resilience.CircuitBreakerConfig{}),
		retryCfg: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
		log: logger.WithComponent("mirror"),
	}
}

// Dropped returns the number of rows abandoned after retry exhaustion.
func (m *Mirror) Dropped() int64 {
	return m.dropped.Load()
}

// Handle is the Kafka message handler. It always returns nil: a row the
// mirror cannot append is dropped, never redelivered, so a poisoned message
// or a long Sheets outage cannot wedge the consumer group.
func (m *Mirror) Handle(ctx context.Context, key, value []byte) error {
	env, err := kafka.DecodeJSON[funnel.Envelope](value)
	if err != nil {
		m.log.Warn("skipping undecodable event", "error", err, "key", string(key))
		return nil
	}

	tab, header, row, err := m.mapEnvelope(env)
	if err != nil {
		m.log.Warn("skipping unmappable event", "error", err, "kind", env.Kind)
		return nil
	}

	appendErr := m.breaker.Execute(func() error {
		return resilience.Retry(ctx, "sheets-append", m.retryCfg, func() error {
			return resilience.WithTimeout(ctx, appendTimeout, "sheets-append", func(ctx context.Context) error {
				return m.appender.Append(ctx, tab, header, row)
			})
		})
	})
	if m.metrics != nil {
		m.metrics.CircuitBreakerState.WithLabelValues("sheets-append").Set(float64(m.breaker.GetState()))
	}
	if appendErr != nil {
		m.dropped.Add(1)
		if m.metrics != nil {
			m.metrics.MirrorFailuresTotal.Inc()
		}
		m.log.Error("dropping row after append failure", "tab", tab, "error", appendErr, "dropped_total", m.dropped.Load())
		return nil
	}

	if m.metrics != nil {
		m.metrics.MirrorRowsTotal.WithLabelValues(tab).Inc()
	}
	return nil
}

// mapEnvelope converts an envelope to its target tab, header row, and data
// row. Session starts and exits both land in the sessions tab; step events in
// the steps tab.
func (m *Mirror) mapEnvelope(env funnel.Envelope) (tab string, header []string, row []any, err error) {
	switch env.Kind {
	case funnel.KindSessionStarted, funnel.KindSessionExited:
		if env.Session == nil {
			return "", nil, nil, fmt.Errorf("envelope kind %s carries no session", env.Kind)
		}
		return m.cfg.SessionsTab, sessionHeader, sessionRow(env.Session), nil
	case funnel.KindStepEvent:
		if env.Event == nil {
			return "", nil, nil, fmt.Errorf("envelope kind %s carries no event", env.Kind)
		}
		return m.cfg.StepsTab, stepHeader, stepRow(env.Event), nil
	default:
		return "", nil, nil, fmt.Errorf("unknown envelope kind %q", env.Kind)
	}
}

func sessionRow(s *funnel.Session) []any {
	return []any{
		s.ID,
		s.CreatedAt.UTC().Format(time.RFC3339),
		s.ClientDescriptor,
		strconv.Itoa(s.CurrentStep),
		strconv.Itoa(s.TimeSpentSec),
		string(s.ExitReason),
	}
}

func stepRow(e *funnel.StepEvent) []any {
	timeSpent := ""
	if e.TimeSpentSec != nil {
		timeSpent = strconv.Itoa(*e.TimeSpentSec)
	}
	answers := ""
	if len(e.Answers) > 0 {
		if b, err := json.Marshal(e.Answers); err == nil {
			answers = string(b)
		}
	}
	return []any{
		e.SessionID,
		strconv.Itoa(e.StepIndex),
		e.StepName,
		string(e.Action),
		timeSpent,
		string(e.ExitReason),
		answers,
		e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
