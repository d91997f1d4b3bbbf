// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/holomush/sessionauth/internal/observability"
	"github.com/holomush/sessionauth/internal/store"
	"github.com/holomush/sessionauth/internal/web"
)

// CommonDeps contains dependencies shared by every database command.
// All fields with nil values will use their default implementations.
type CommonDeps struct {
	// MigratorFactory creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// DatabaseFactory opens a connection pool.
	// Default: store.Connect
	DatabaseFactory func(ctx context.Context, cfg store.PoolConfig) (Database, error)
}

// ServeDeps contains injectable dependencies for the serve command.
type ServeDeps struct {
	CommonDeps

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// HTTPServerFactory creates the public auth server.
	// Default: web.NewServer
	HTTPServerFactory func(addr string, handler http.Handler, readHeaderTimeout time.Duration, logger *slog.Logger, opts ...web.ServerOption) HTTPServer

	// Signals delivers shutdown signals.
	// Default: SIGINT and SIGTERM via signal.Notify
	Signals func() (<-chan os.Signal, func())
}

// Database is the part of *pgxpool.Pool the commands use.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// HTTPServer wraps the methods used from web.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *CommonDeps) withDefaults() {
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if d.DatabaseFactory == nil {
		d.DatabaseFactory = func(ctx context.Context, cfg store.PoolConfig) (Database, error) {
			pool, err := store.Connect(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
}

func (d *ServeDeps) withDefaults() {
	d.CommonDeps.withDefaults()
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.HTTPServerFactory == nil {
		d.HTTPServerFactory = func(addr string, handler http.Handler, readHeaderTimeout time.Duration, logger *slog.Logger, opts ...web.ServerOption) HTTPServer {
			return web.NewServer(addr, handler, readHeaderTimeout, logger, opts...)
		}
	}
	if d.Signals == nil {
		d.Signals = notifyShutdownSignals
	}
}
