package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Bootstrap(os.Stderr).Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("component", "archive-worker").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Dur("archive_after", cfg.ArchiveAfter).
		Msg("archive worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PoolConfig())
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Archiving never books a slot, so no lock is needed.
	svc := scheduling.NewService(
		scheduling.NewPgRepository(pgPool),
		redisclient.NoopLocker{},
		cfg,
		scheduling.WithMetrics(metrics.NewScheduling(nil)),
		scheduling.WithLogger(logger),
	)

	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping archive worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *scheduling.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.ArchiveFinishedAppointments(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("archive run error")
		return
	}
	logger.Info().Int64("archived", n).Dur("took", time.Since(start)).Msg("archive run complete")
}
