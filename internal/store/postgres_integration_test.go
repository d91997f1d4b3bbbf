// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/sessionauth/internal/store"
	"github.com/holomush/sessionauth/internal/store/storetest"
)

var _ = Describe("PostgreSQL schema", Ordered, func() {
	var (
		ctx  context.Context
		db   *storetest.Database
		pool *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		db, err = storetest.Start(ctx, true)
		Expect(err).NotTo(HaveOccurred())

		pool, err = store.Connect(ctx, store.PoolConfig{URL: db.URL, MaxConns: 4, ConnectRetries: 3})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if db != nil {
			_ = db.Terminate(ctx)
		}
	})

	insertPrincipal := func(username, email string) error {
		_, err := pool.Exec(ctx, `
			INSERT INTO principals (id, first_name, last_name, username, email, password_hash)
			VALUES ($1, 'A', 'B', $2, $3, 'hash')
		`, ulid.Make().String(), username, email)
		return err
	}

	constraintOf := func(err error) string {
		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue(), "expected *pgconn.PgError, got %T", err)
		Expect(pgErr.Code).To(Equal(pgerrcode.UniqueViolation))
		return pgErr.ConstraintName
	}

	It("reports readiness", func() {
		Expect(store.NewReadiness(pool, 0).IsReady()).To(BeTrue())
	})

	It("rejects emails that differ only by case", func() {
		Expect(insertPrincipal("caseuser1", "Case@Example.com")).To(Succeed())
		err := insertPrincipal("caseuser2", "case@example.COM")
		Expect(err).To(HaveOccurred())
		Expect(constraintOf(err)).To(Equal("principals_email_key"))
	})

	It("rejects usernames that differ only by case", func() {
		Expect(insertPrincipal("SameName", "one@example.com")).To(Succeed())
		err := insertPrincipal("samename", "two@example.com")
		Expect(err).To(HaveOccurred())
		Expect(constraintOf(err)).To(Equal("principals_username_key"))
	})

	It("rejects an empty password hash", func() {
		_, err := pool.Exec(ctx, `
			INSERT INTO principals (id, first_name, last_name, username, email, password_hash)
			VALUES ($1, 'A', 'B', 'nohash', 'nohash@example.com', '')
		`, ulid.Make().String())
		Expect(err).To(HaveOccurred())
	})

	It("cascades principal deletion to web sessions", func() {
		principalID := ulid.Make().String()
		_, err := pool.Exec(ctx, `
			INSERT INTO principals (id, first_name, last_name, username, email, password_hash)
			VALUES ($1, 'A', 'B', 'cascade', 'cascade@example.com', 'hash')
		`, principalID)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `
			INSERT INTO web_sessions (id, principal_id, token_hash, expires_at)
			VALUES ($1, $2, 'cascade-hash', NOW() + INTERVAL '1 hour')
		`, ulid.Make().String(), principalID)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `DELETE FROM principals WHERE id = $1`, principalID)
		Expect(err).NotTo(HaveOccurred())

		var count int
		Expect(pool.QueryRow(ctx, `SELECT COUNT(*) FROM web_sessions WHERE principal_id = $1`, principalID).
			Scan(&count)).To(Succeed())
		Expect(count).To(Equal(0))
	})
})
