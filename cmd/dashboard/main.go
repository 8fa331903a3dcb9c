// Command dashboard starts the funnel analytics admin service.
//
// It serves the HTML overview and session pages, the JSON read API over
// PostgreSQL, CSV exports, collector write-key administration, and live
// recorder stats fetched from the collector over RPC. Aggregates are cached
// in Redis when Redis is reachable; without it every request recomputes.
//
// Usage:
//
//	go run ./cmd/dashboard [-config path/to/config.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stepfunnel/analytics-platform/internal/auth/apikey"
	"github.com/stepfunnel/analytics-platform/internal/dashboard/cache"
	dashhandler "github.com/stepfunnel/analytics-platform/internal/dashboard/handler"
	"github.com/stepfunnel/analytics-platform/internal/dashboard/query"
	"github.com/stepfunnel/analytics-platform/internal/dashboard/router"
	"github.com/stepfunnel/analytics-platform/internal/dashboard/stats"
	"github.com/stepfunnel/analytics-platform/pkg/config"
	"github.com/stepfunnel/analytics-platform/pkg/grpc"
	"github.com/stepfunnel/analytics-platform/pkg/health"
	"github.com/stepfunnel/analytics-platform/pkg/logger"
	"github.com/stepfunnel/analytics-platform/pkg/metrics"
	"github.com/stepfunnel/analytics-platform/pkg/postgres"
	"github.com/stepfunnel/analytics-platform/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting dashboard service", "port", cfg.Dashboard.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	// Redis is optional: without it aggregates are recomputed per request.
	var aggCache *cache.AggregateCache
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, aggregate caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		aggCache = cache.New(redisClient, cfg.Redis, m)
	}

	store := query.New(db)
	service := stats.NewService(store, aggCache)
	keys := apikey.NewValidator(db)

	// Live stats RPC to the collector; the endpoint answers 503 until the
	// collector is up.
	var live dashhandler.LiveStatsClient
	if rpcClient, err := grpc.Dial(cfg.Dashboard.CollectorRPC); err != nil {
		slog.Warn("collector rpc unreachable, live stats disabled", "addr", cfg.Dashboard.CollectorRPC, "error", err)
	} else {
		defer rpcClient.Close()
		live = rpcClient
	}

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	h := dashhandler.New(store, service, keys, live, m, dashhandler.Config{
		DefaultPageSize: cfg.Dashboard.DefaultPageSize,
		MaxPageSize:     cfg.Dashboard.MaxPageSize,
	})
	chain := router.New(h, checker, m)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Dashboard.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("dashboard listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("dashboard stopped")
}
