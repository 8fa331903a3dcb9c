package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepfunnel/analytics-platform/internal/dashboard/cache"
	"github.com/stepfunnel/analytics-platform/internal/funnel"
)

// Feeder is the slice of the query layer the aggregation service reads
// through. The production implementation is dashboard/query.Store; tests
// substitute an in-memory fake.
type Feeder interface {
	ListAllSessions(ctx context.Context, from, to time.Time) ([]funnel.Session, error)
	ListAllStepEvents(ctx context.Context) ([]funnel.StepEvent, error)
}

// Service serves the derived aggregates, reading through the cache when one
// is configured.
type Service struct {
	feeder Feeder
	cache  *cache.AggregateCache
	logger *slog.Logger
}

// NewService creates a Service. c may be nil to disable caching.
func NewService(feeder Feeder, c *cache.AggregateCache) *Service {
	return &Service{
		feeder: feeder,
		cache:  c,
		logger: slog.Default().With("component", "stats-service"),
	}
}

// Summary fetches all sessions (optionally bounded to [from, to]; zero times
// unbound) and computes the overview Summary.
func (s *Service) Summary(ctx context.Context, from, to time.Time) (funnel.Summary, error) {
	return s.cache.Summary(ctx, from, to, func() (funnel.Summary, error) {
		sessions, err := s.feeder.ListAllSessions(ctx, from, to)
		if err != nil {
			return funnel.Summary{}, fmt.Errorf("fetching sessions for summary: %w", err)
		}
		return Summarize(sessions), nil
	})
}

// StepStats fetches all step events and computes the per-step statistics.
func (s *Service) StepStats(ctx context.Context) ([]funnel.StepStats, error) {
	return s.cache.StepStats(ctx, func() ([]funnel.StepStats, error) {
		events, err := s.feeder.ListAllStepEvents(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching events for step stats: %w", err)
		}
		return StepStatistics(events), nil
	})
}

// InvalidateCache drops every cached aggregate. No-op without a cache.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}
