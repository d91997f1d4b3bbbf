// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/internal/auth/postgres"
	"github.com/holomush/sessionauth/pkg/errutil"
)

var sessionCols = []string{
	"id", "principal_id", "token_hash", "user_agent", "ip_address", "expires_at", "created_at", "last_seen_at",
}

func TestWebSessionRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	now := time.Now().UTC()
	s := &auth.WebSession{
		ID:          ulid.Make(),
		PrincipalID: ulid.Make(),
		TokenHash:   "hash",
		UserAgent:   "Mozilla/5.0",
		IPAddress:   "10.0.0.1",
		ExpiresAt:   now.Add(time.Hour),
		CreatedAt:   now,
		LastSeenAt:  now,
	}

	mock.ExpectExec(`INSERT INTO web_sessions`).
		WithArgs(s.ID.String(), s.PrincipalID.String(), "hash", "Mozilla/5.0", "10.0.0.1", s.ExpiresAt, s.CreatedAt, s.LastSeenAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, postgres.NewWebSessionRepository(mock).Create(context.Background(), s))
}

func TestWebSessionRepository_GetByTokenHash(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		id, principalID := ulid.Make(), ulid.Make()
		now := time.Now().UTC()
		mock.ExpectQuery(`FROM web_sessions\s+WHERE token_hash = \$1`).
			WithArgs("hash").
			WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
				id.String(), principalID.String(), "hash", "ua", "ip", now.Add(time.Hour), now, now))

		got, err := postgres.NewWebSessionRepository(mock).GetByTokenHash(ctx, "hash")
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, principalID, got.PrincipalID)
		assert.False(t, got.IsExpired())
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM web_sessions\s+WHERE token_hash = \$1`).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows(sessionCols))

		_, err := postgres.NewWebSessionRepository(mock).GetByTokenHash(ctx, "missing")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "SESSION_NOT_FOUND")
	})

	t.Run("corrupt principal id", func(t *testing.T) {
		mock := newMockPool(t)
		now := time.Now().UTC()
		mock.ExpectQuery(`FROM web_sessions\s+WHERE token_hash = \$1`).
			WithArgs("hash").
			WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
				ulid.Make().String(), "bogus", "hash", "", "", now, now, now))

		_, err := postgres.NewWebSessionRepository(mock).GetByTokenHash(ctx, "hash")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestWebSessionRepository_UpdateLastSeen(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	seen := time.Now().UTC()

	t.Run("updates", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE web_sessions SET last_seen_at`).
			WithArgs(id.String(), seen).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, postgres.NewWebSessionRepository(mock).UpdateLastSeen(ctx, id, seen))
	})

	t.Run("missing", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE web_sessions SET last_seen_at`).
			WithArgs(id.String(), seen).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		err := postgres.NewWebSessionRepository(mock).UpdateLastSeen(ctx, id, seen)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestWebSessionRepository_Deletes(t *testing.T) {
	ctx := context.Background()

	t.Run("delete missing", func(t *testing.T) {
		mock := newMockPool(t)
		id := ulid.Make()
		mock.ExpectExec(`DELETE FROM web_sessions WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		assert.ErrorIs(t, postgres.NewWebSessionRepository(mock).Delete(ctx, id), auth.ErrNotFound)
	})

	t.Run("delete by principal tolerates zero rows", func(t *testing.T) {
		mock := newMockPool(t)
		principalID := ulid.Make()
		mock.ExpectExec(`DELETE FROM web_sessions WHERE principal_id = \$1`).
			WithArgs(principalID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		assert.NoError(t, postgres.NewWebSessionRepository(mock).DeleteByPrincipal(ctx, principalID))
	})

	t.Run("delete expired returns count", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM web_sessions WHERE expires_at <= \$1`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		n, err := postgres.NewWebSessionRepository(mock).DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("delete expired failure", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM web_sessions WHERE expires_at`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))
		_, err := postgres.NewWebSessionRepository(mock).DeleteExpired(ctx)
		errutil.AssertErrorCode(t, err, "SESSION_DELETE_EXPIRED_FAILED")
	})
}
