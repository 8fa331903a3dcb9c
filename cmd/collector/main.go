// Command collector starts the funnel event-collection service.
//
// It accepts session-start, step-event, and abandonment-beacon writes from
// funnel frontends, persists them to PostgreSQL, publishes each accepted
// event to Kafka for the spreadsheet mirror, and serves live recorder stats
// over the internal RPC endpoint.
//
// Usage:
//
//	go run ./cmd/collector [-config path/to/config.yaml]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stepfunnel/analytics-platform/internal/auth/apikey"
	"github.com/stepfunnel/analytics-platform/internal/auth/ratelimit"
	colhandler "github.com/stepfunnel/analytics-platform/internal/collector/handler"
	"github.com/stepfunnel/analytics-platform/internal/collector/recorder"
	"github.com/stepfunnel/analytics-platform/internal/collector/router"
	"github.com/stepfunnel/analytics-platform/internal/collector/store"
	"github.com/stepfunnel/analytics-platform/pkg/config"
	"github.com/stepfunnel/analytics-platform/pkg/grpc"
	"github.com/stepfunnel/analytics-platform/pkg/kafka"
	"github.com/stepfunnel/analytics-platform/pkg/logger"
	"github.com/stepfunnel/analytics-platform/pkg/metrics"
	"github.com/stepfunnel/analytics-platform/pkg/postgres"
	"github.com/stepfunnel/analytics-platform/pkg/rpctypes"
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
	slog.Info("starting collector service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FunnelEvents)
	defer producer.Close()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	rec := recorder.New(store.New(db), producer, m, cfg.Collector.SessionIdleTTL)
	rec.Start(ctx)

	// Internal RPC: live recorder stats for the dashboard.
	rpcServer := grpc.NewServer()
	rpcServer.Register("Recorder.LiveStats", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return rec.LiveStats(), nil
	})
	rpcServer.Register("Recorder.SessionState", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req rpctypes.SessionStateRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("decoding params: %w", err)
		}
		return rec.SessionState(req.SessionID), nil
	})
	go func() {
		if err := rpcServer.Serve(fmt.Sprintf(":%d", cfg.Collector.RPCPort)); err != nil {
			slog.Error("rpc server error", "error", err)
		}
	}()
	defer rpcServer.Stop()

	validator := apikey.NewValidator(db)
	limiter := ratelimit.New(time.Minute)
	limiter.Start(ctx)

	h := colhandler.New(rec, cfg.Collector.MaxStepIndex)
	chain := router.New(h, validator, limiter, cfg.Collector.DefaultRateLimit, m)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
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

	slog.Info("collector listening", "addr", server.Addr, "rpc_port", cfg.Collector.RPCPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("collector stopped")
}
