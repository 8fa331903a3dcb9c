// Package cache provides Redis-backed caching of the dashboard's derived
// aggregates (Summary, StepStats) with singleflight collapsing of concurrent
// recomputes. Cache failures are logged and degrade to direct computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stepfunnel/analytics-platform/internal/funnel"
	"github.com/stepfunnel/analytics-platform/pkg/config"
	"github.com/stepfunnel/analytics-platform/pkg/metrics"
	pkgredis "github.com/stepfunnel/analytics-platform/pkg/redis"
)

const keyPrefix = "funnel:agg:"

// AggregateCache caches computed aggregates in Redis. A nil *AggregateCache
// is valid and always recomputes.
type AggregateCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates an AggregateCache. m may be nil.
func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *AggregateCache {
	return &AggregateCache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "aggregate-cache"),
	}
}

// Summary returns the cached Summary for the [from, to] window, computing and
// storing it on a miss. Concurrent misses for the same window share one
// computation.
func (c *AggregateCache) Summary(ctx context.Context, from, to time.Time, computeFn func() (funnel.Summary, error)) (funnel.Summary, error) {
	if c == nil {
		return computeFn()
	}
	key := c.buildKey("summary", fmt.Sprintf("%d-%d", from.UnixNano(), to.UnixNano()))
	return getOrCompute(ctx, c, key, computeFn)
}

// StepStats returns the cached per-step statistics, computing and storing
// them on a miss.
func (c *AggregateCache) StepStats(ctx context.Context, computeFn func() ([]funnel.StepStats, error)) ([]funnel.StepStats, error) {
	if c == nil {
		return computeFn()
	}
	key := c.buildKey("steps", "all")
	return getOrCompute(ctx, c, key, computeFn)
}

// Invalidate removes every cached aggregate.
func (c *AggregateCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating aggregate cache: %w", err)
	}
	c.logger.Info("aggregate cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counters.
func (c *AggregateCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// getOrCompute is the generic read-through path shared by Summary and
// StepStats. It is a free function because methods cannot take type
// parameters.
func getOrCompute[T any](ctx context.Context, c *AggregateCache, key string, computeFn func() (T, error)) (T, error) {
	if cached, ok := cacheGet[T](ctx, c, key); ok {
		return cached, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		if cached, ok := cacheGet[T](ctx, c, key); ok {
			return cached, nil
		}
		result, err := computeFn()
		if err != nil {
			return result, err
		}
		c.cacheSet(ctx, key, result)
		return result, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return val.(T), nil
}

func cacheGet[T any](ctx context.Context, c *AggregateCache, key string) (T, bool) {
	var zero T
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return zero, false
	}

	var result T
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return zero, false
	}
	c.hit()
	return result, true
}

func (c *AggregateCache) cacheSet(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *AggregateCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.SummaryCacheHits.Inc()
	}
}

func (c *AggregateCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.SummaryCacheMisses.Inc()
	}
}

func (c *AggregateCache) buildKey(kind, variant string) string {
	hash := sha256.Sum256([]byte(variant))
	return fmt.Sprintf("%s%s:%x", keyPrefix, kind, hash[:12])
}
