// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package storetest starts a migrated PostgreSQL container for integration tests.
package storetest

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/sessionauth/internal/store"
)

// Image is the PostgreSQL image used by integration tests.
const Image = "postgres:16-alpine"

// Database is a running test database.
type Database struct {
	URL       string
	container *postgres.PostgresContainer
}

// Terminate stops the container.
func (d *Database) Terminate(ctx context.Context) error {
	return d.container.Terminate(ctx)
}

// Start runs a PostgreSQL container. When migrate is true the embedded
// migrations are applied before it returns.
func Start(ctx context.Context, migrate bool) (*Database, error) {
	container, err := postgres.Run(ctx,
		Image,
		postgres.WithDatabase("sessionauth_test"),
		postgres.WithUsername("sessionauth"),
		postgres.WithPassword("sessionauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, oops.With("operation", "start postgres container").Wrap(err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, oops.With("operation", "get connection string").Wrap(err)
	}

	db := &Database{URL: connStr, container: container}
	if !migrate {
		return db, nil
	}

	m, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	defer m.Close() //nolint:errcheck // test helper

	if err := m.Up(); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return db, nil
}
