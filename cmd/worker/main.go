// The worker binary runs everything that must not live on the request path:
// the report worker pool, the outbox publisher, the AML repair scan, and the
// game session expiry sweep.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/betlink/hub/internal/app"
	"github.com/betlink/hub/internal/infra"
)

const (
	repairInterval = 5 * time.Minute
	repairBatch    = 200
	expiryInterval = 10 * time.Minute
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("worker connected to postgres")

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	application, err := app.New(cfg, pool, rdb, logger)
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}
	defer application.Close()

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	poller := infra.NewOutboxPoller(pool, producer, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		application.Scheduler.Run(ctx, cfg.ReportWorkers, application.Cache)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runEvery(ctx, repairInterval, func() {
			repaired, err := application.Analyzer.RepairScan(ctx, repairBatch)
			if err != nil {
				logger.Error("aml repair scan failed", "error", err)
				return
			}
			if repaired > 0 {
				logger.Info("aml repair scan completed", "repaired", repaired)
			}
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runEvery(ctx, expiryInterval, func() {
			expired, err := application.Games.ExpireStaleSessions(ctx)
			if err != nil {
				logger.Error("session expiry sweep failed", "error", err)
				return
			}
			if expired > 0 {
				logger.Info("expired stale sessions", "count", expired)
			}
		})
	}()

	logger.Info("worker started",
		"report_workers", cfg.ReportWorkers,
		"kafka_enabled", cfg.KafkaEnabled,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	wg.Wait()
	logger.Info("worker stopped gracefully")
	return nil
}

// runEvery runs fn once immediately, then on every tick until ctx ends.
func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	fn()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
