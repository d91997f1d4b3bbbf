// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/internal/auth/postgres"
	"github.com/holomush/sessionauth/internal/config"
	"github.com/holomush/sessionauth/internal/store"
	certs "github.com/holomush/sessionauth/internal/tls"
	"github.com/holomush/sessionauth/internal/web"
	"github.com/holomush/sessionauth/pkg/errutil"
)

// readinessTimeout bounds the database ping behind /healthz/readiness.
const readinessTimeout = 2 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication server",
		Long: `Start the public auth listener and the metrics/health listener.
Pending schema migrations are applied first unless --db-auto-migrate=false.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	config.RegisterServeFlags(cmd.Flags())
	config.RegisterDatabaseFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	databaseURL, err := cfg.DatabaseURL()
	if err != nil {
		return err
	}

	logger := commandLogger(cfg)
	logger.Info("starting sessionauth",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"session_store", cfg.Session.Store,
		"reject", cfg.Session.Reject,
		"tls", cfg.TLSEnabled(),
	)

	var serverOpts []web.ServerOption
	if cfg.TLSEnabled() {
		tlsConfig, err := certs.LoadServerConfig(cfg.HTTP.TLSCert, cfg.HTTP.TLSKey)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, web.WithTLSConfig(tlsConfig))
	}

	if cfg.Database.AutoMigrate {
		if err := runAutoMigrate(deps.MigratorFactory, databaseURL, logger); err != nil {
			return err
		}
	}

	db, err := deps.DatabaseFactory(ctx, store.PoolConfig{
		URL:            databaseURL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectRetries: cfg.Database.ConnectRetries,
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()
	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, store.NewReadiness(db, readinessTimeout).IsReady)
	}

	router, err := buildRouter(cfg, db, obsServer, logger)
	if err != nil {
		return err
	}

	httpServer := deps.HTTPServerFactory(cfg.HTTP.Addr, router, cfg.HTTP.ReadHeaderTimeout, logger, serverOpts...)
	httpErrCh, err := httpServer.Start()
	if err != nil {
		return oops.With("operation", "start http server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, httpErrCh, "http", logger)

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopServer(httpServer, cfg.HTTP.ShutdownTimeout, "http", logger)
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	sigCh, stopSignals := deps.Signals()
	defer stopSignals()

	cmd.Println("sessionauth listening on " + httpServer.Addr())

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	stopServer(httpServer, cfg.HTTP.ShutdownTimeout, "http", logger)
	if obsServer != nil {
		stopServer(obsServer, cfg.HTTP.ShutdownTimeout, "observability", logger)
	}

	logger.Info("shutdown complete")
	return nil
}

// buildRouter wires the auth components over db. obsServer may be nil.
func buildRouter(cfg *config.Config, db Database, obsServer ObservabilityServer, logger *slog.Logger) (http.Handler, error) {
	hasher, err := cfg.Hasher.Build()
	if err != nil {
		return nil, err
	}

	principals := postgres.NewPrincipalRepository(db)
	webSessions := postgres.NewWebSessionRepository(db)

	identities, err := auth.NewIdentityStoreWithLogger(principals, hasher, cfg.Database.QueryTimeout, logger)
	if err != nil {
		return nil, err
	}
	authenticator, err := auth.NewAuthenticator(identities, hasher,
		auth.WithTimingEqualization(cfg.Auth.EqualizeTiming),
		auth.WithAuthenticatorLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	codec, err := auth.NewSessionCodecWithLogger(identities, logger)
	if err != nil {
		return nil, err
	}

	sessionStore, err := web.NewSessionStore(cfg.Session, webSessions, logger)
	if err != nil {
		return nil, err
	}
	rejector, err := web.NewRejector(cfg.Session)
	if err != nil {
		return nil, err
	}

	gateOpts := []web.GateOption{web.WithRejector(rejector), web.WithGateLogger(logger)}
	var inst web.Instrumenter
	if obsServer != nil {
		if metrics := obsServer.Metrics(); metrics != nil {
			gateOpts = append(gateOpts, web.WithRejectionRecorder(metrics))
			inst = metrics
		}
	}

	gate, err := web.NewGate(sessionStore, codec, cfg.Session.CookieName, gateOpts...)
	if err != nil {
		return nil, err
	}
	handler, err := web.NewAuthHandler(identities, authenticator, gate, logger)
	if err != nil {
		return nil, err
	}

	return web.NewRouter(handler, gate, inst), nil
}

// runAutoMigrate applies pending migrations before serving.
func runAutoMigrate(factory func(string) (Migrator, error), databaseURL string, logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close migrator", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database schema up to date")
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

func stopServer(s stopper, timeout time.Duration, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// notifyShutdownSignals relays SIGINT and SIGTERM.
func notifyShutdownSignals() (<-chan os.Signal, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh, func() { signal.Stop(sigCh) }
}

// monitorServerErrors cancels ctx when a server reports a serve error.
// It exits when an error arrives, the channel closes, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
