package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/api"
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

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("component", "api-server").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("timezone", cfg.Timezone).
		Msg("api-server starting up")

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

	var (
		rdb    *goredis.Client
		locker redisclient.Locker = redisclient.NoopLocker{}
	)
	if cfg.RedisEnabled {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	} else {
		logger.Warn().Msg("redis disabled, slot exclusivity relies on the database index only")
	}

	svc := scheduling.NewService(
		scheduling.NewPgRepository(pgPool),
		locker,
		cfg,
		scheduling.WithMetrics(metrics.NewScheduling(nil)),
		scheduling.WithLogger(logger),
	)

	router := api.NewRouter(api.RouterConfig{
		Service:                 svc,
		DB:                      pgPool,
		Redis:                   rdb,
		Logger:                  logger,
		Location:                cfg.Location,
		Env:                     cfg.Env,
		Version:                 cfg.Version,
		AssistantPractitionerID: cfg.AssistantPractitionerID,
		RateLimitRPS:            cfg.RateLimitRPS,
		RateLimitBurst:          cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("api-server stopped")
}
