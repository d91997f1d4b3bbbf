// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig configures Connect.
type PoolConfig struct {
	URL string
	// MaxConns caps the pool size; zero keeps the pgxpool default.
	MaxConns int32
	// ConnectRetries is how many times a failed initial ping is retried.
	ConnectRetries uint64
	// RetryBase is the first backoff interval; it doubles on each retry.
	RetryBase time.Duration
}

// DefaultRetryBase is used when PoolConfig.RetryBase is zero.
const DefaultRetryBase = 250 * time.Millisecond

// pinger is the part of *pgxpool.Pool Connect needs to verify connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pool and waits, with exponential backoff, until the
// database answers a ping.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForPing(ctx, pool, cfg.ConnectRetries, cfg.RetryBase); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForPing(ctx context.Context, db pinger, retries uint64, base time.Duration) error {
	if base <= 0 {
		base = DefaultRetryBase
	}
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(base))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

// Readiness reports whether the database answers a ping within timeout.
// It satisfies the readiness checker of the observability server.
type Readiness struct {
	db      pinger
	timeout time.Duration
}

// NewReadiness creates a Readiness check over db.
func NewReadiness(db pinger, timeout time.Duration) *Readiness {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Readiness{db: db, timeout: timeout}
}

// IsReady pings the database.
func (r *Readiness) IsReady() bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.db.Ping(ctx) == nil
}
