package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logger"
	"github.com/hackgods/doctor-appointment-scheduling/internal/metrics"
	"github.com/hackgods/doctor-appointment-scheduling/internal/outbox"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New("prod")
		log.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env).With().Str("component", "outbox-worker").Logger()
	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Int("batch", cfg.OutboxBatch).
		Str("channel", cfg.EventsChannel).
		Msg("outbox worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, "outbox-worker")
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	metrics.Register()
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	repo := appointment.NewPgRepository(pgPool)
	publisher := outbox.NewRedisPublisher(redisclient.NewPublisher(rdb, cfg.EventsChannel))
	dispatcher := outbox.NewDispatcher(repo, publisher, cfg.OutboxBatch, log)

	dispatcher.Run(rootCtx, cfg.WorkerInterval)
	log.Info().Msg("shutdown signal received, outbox worker stopped")
}
