// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/sessionauth/internal/auth/postgres"
	"github.com/holomush/sessionauth/internal/store"
)

// NewPruneSessionsCmd creates the prune-sessions subcommand.
func NewPruneSessionsCmd() *cobra.Command {
	return newPruneSessionsCmdWithDeps(nil)
}

func newPruneSessionsCmdWithDeps(deps *CommonDeps) *cobra.Command {
	if deps == nil {
		deps = &CommonDeps{}
	}
	deps.withDefaults()

	var principal string
	cmd := &cobra.Command{
		Use:   "prune-sessions",
		Short: "Delete expired server-side sessions",
		Long: `Delete every web session whose expiry has passed. Expired sessions are
already ignored at login time; pruning only reclaims storage.

With --principal, delete every session of that principal instead, signing
it out of all browsers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPruneSessions(cmd.Context(), cmd, deps, principal)
		},
	}
	cmd.Flags().StringVar(&principal, "principal", "", "revoke all sessions of this principal ID")
	databaseCommandFlags(cmd.Flags())
	return cmd
}

func runPruneSessions(ctx context.Context, cmd *cobra.Command, deps *CommonDeps, principal string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var principalID ulid.ULID
	if principal != "" {
		id, err := ulid.ParseStrict(principal)
		if err != nil {
			return oops.Code("INVALID_PRINCIPAL_ID").With("input", principal).Wrap(err)
		}
		principalID = id
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := commandLogger(cfg)
	databaseURL, err := cfg.DatabaseURL()
	if err != nil {
		return err
	}

	db, err := deps.DatabaseFactory(ctx, store.PoolConfig{
		URL:            databaseURL,
		MaxConns:       1,
		ConnectRetries: cfg.Database.ConnectRetries,
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	sessions := postgres.NewWebSessionRepository(db)
	if principal != "" {
		if err := sessions.DeleteByPrincipal(ctx, principalID); err != nil {
			return oops.With("operation", "revoke principal sessions").Wrap(err)
		}
		logger.Info("principal sessions revoked", "principal_id", principalID.String())
		cmd.Printf("Revoked all sessions of principal %s\n", principalID)
		return nil
	}

	deleted, err := sessions.DeleteExpired(ctx)
	if err != nil {
		return oops.With("operation", "prune expired sessions").Wrap(err)
	}

	logger.Info("expired sessions pruned", "deleted", deleted)
	cmd.Printf("Deleted %d expired session(s)\n", deleted)
	return nil
}
