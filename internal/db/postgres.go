package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// statementTimeout caps any single statement, including a booking blocked on
// pg_advisory_xact_lock for a busy doctor day.
const statementTimeout = "10s"

// ConnectPostgres opens a pool sized for booking traffic. Each booking holds one
// connection for the duration of its day transaction. appName shows up in
// pg_stat_activity so lock waits can be traced back to a binary.
func ConnectPostgres(ctx context.Context, dsn, appName string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if cfg.MaxConns < 20 {
		cfg.MaxConns = 20
	}
	cfg.MinConns = 2
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	params := cfg.ConnConfig.RuntimeParams
	if appName != "" {
		params["application_name"] = appName
	}
	if _, ok := params["statement_timeout"]; !ok {
		params["statement_timeout"] = statementTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", cfg.ConnConfig.Host, err)
	}

	return pool, nil
}
