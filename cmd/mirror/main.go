// Command mirror consumes funnel events from Kafka and appends them to a
// Google spreadsheet. It is an optional, write-only side channel: the
// dashboard never reads the spreadsheet back.
//
// Missing spreadsheet credentials are a startup error. A mirror without
// credentials cannot do anything useful, so it dies immediately instead of
// dropping every row at runtime.
//
// Usage:
//
//	go run ./cmd/mirror [-config path/to/config.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stepfunnel/analytics-platform/internal/mirror"
	"github.com/stepfunnel/analytics-platform/internal/mirror/sheets"
	"github.com/stepfunnel/analytics-platform/pkg/config"
	"github.com/stepfunnel/analytics-platform/pkg/kafka"
	"github.com/stepfunnel/analytics-platform/pkg/logger"
	"github.com/stepfunnel/analytics-platform/pkg/metrics"
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

	if err := cfg.Sheets.Validate(); err != nil {
		slog.Error("invalid sheets configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appender, err := sheets.NewAppender(ctx, cfg.Sheets)
	if err != nil {
		slog.Error("failed to create sheets client", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	mir := mirror.New(appender, cfg.Sheets, m)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.FunnelEvents, mir.Handle)

	slog.Info("mirror started",
		"topic", cfg.Kafka.Topics.FunnelEvents,
		"spreadsheet", cfg.Sheets.SpreadsheetID,
		"sessions_tab", cfg.Sheets.SessionsTab,
		"steps_tab", cfg.Sheets.StepsTab,
	)

	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		slog.Error("consumer error", "error", err)
		os.Exit(1)
	}

	slog.Info("mirror stopped", "rows_dropped", mir.Dropped())
}
