package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/doctor-appointment-scheduling/internal/api"
	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logger"
	"github.com/hackgods/doctor-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New("prod")
		log.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env)
	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("metrics_port", cfg.MetricsPort).
		Str("timezone", cfg.Location.String()).
		Msg("api-server starting up")

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("api-server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("api-server stopped")
}

// run owns every resource with a deferred close so that main can exit only after they ran.
func run(cfg config.Config, log zerolog.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, "api-server")
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	applied, err := db.Migrate(rootCtx, pgPool)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Int("applied", applied).Msg("migrations up to date")

	// Redis is optional: without it bookings rely on the Postgres day lock alone.
	var (
		locker      redisclient.Locker
		redisPinger api.Pinger
	)
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, continuing with database locking only")
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Msg("connected to Redis")

		locker = redisclient.NewRedisDayLocker(rdb, redisclient.LockOptions{
			TTL:   cfg.LockTTL,
			Wait:  cfg.LockWait,
			Retry: cfg.LockRetry,
		})
		redisPinger = redisPing(rdb)
	}

	metrics.Register()

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, locker, cfg, log)

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Postgres: pgPool,
		Redis:    redisPinger,
		JWT: api.JWTConfig{
			SigningKey: []byte(cfg.JWTSecret),
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
		},
		Logger:  log,
		Env:     cfg.Env,
		Version: version,
	})

	apiServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)

	for _, srv := range []*http.Server{apiServer, metricsServer} {
		srv := srv
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down api-server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		return errors.Join(apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

func redisPing(rdb *redis.Client) api.PingFunc {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
