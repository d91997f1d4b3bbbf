// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/internal/auth/authtest"
	"github.com/holomush/sessionauth/internal/auth/mocks"
	"github.com/holomush/sessionauth/pkg/errutil"
)

func TestNewAuthenticator_NilDependencies(t *testing.T) {
	_, err := auth.NewAuthenticator(nil, mocks.NewMockPasswordHasher(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity lookup is required")

	_, err = auth.NewAuthenticator(mocks.NewMockIdentityLookup(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password hasher is required")

	_, err = auth.NewAuthenticator(mocks.NewMockIdentityLookup(t), mocks.NewMockPasswordHasher(t),
		auth.WithTimingEqualization(false), auth.WithAuthenticatorLogger(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger")
}

func TestNewAuthenticator_DummyHashFailure(t *testing.T) {
	hasher := mocks.NewMockPasswordHasher(t)
	hasher.On("Hash", mock.AnythingOfType("string")).Return("", errors.New("entropy exhausted"))

	_, err := auth.NewAuthenticator(mocks.NewMockIdentityLookup(t), hasher)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_INIT_FAILED")
}

func TestAuthenticator_Verify(t *testing.T) {
	ctx := context.Background()

	store, _ := newMemoryIdentityStore(t)
	created, err := store.Create(ctx, validFields())
	require.NoError(t, err)

	authn, err := auth.NewAuthenticator(store, authtest.Hasher())
	require.NoError(t, err)

	t.Run("correct credentials", func(t *testing.T) {
		verdict, err := authn.Verify(ctx, auth.Submission{Email: "a@x.io", Password: "secret1"})
		require.NoError(t, err)
		assert.True(t, verdict.OK())
		require.NotNil(t, verdict.Principal)
		assert.Equal(t, created.ID, verdict.Principal.ID)
		assert.Equal(t, auth.ReasonNone, verdict.Reason)
	})

	t.Run("wrong password", func(t *testing.T) {
		verdict, err := authn.Verify(ctx, auth.Submission{Email: "a@x.io", Password: "wrong"})
		require.NoError(t, err)
		assert.False(t, verdict.OK())
		assert.Nil(t, verdict.Principal)
		assert.Equal(t, auth.ReasonSecretMismatch, verdict.Reason)
	})

	t.Run("unknown email", func(t *testing.T) {
		verdict, err := authn.Verify(ctx, auth.Submission{Email: "ghost@x.io", Password: "secret1"})
		require.NoError(t, err)
		assert.False(t, verdict.OK())
		assert.Equal(t, auth.ReasonUnknownIdentity, verdict.Reason)
	})

	t.Run("empty submission", func(t *testing.T) {
		verdict, err := authn.Verify(ctx, auth.Submission{})
		require.NoError(t, err)
		assert.False(t, verdict.OK())
		assert.Equal(t, auth.ReasonUnknownIdentity, verdict.Reason)
	})
}

// recordingHasher remembers every hash it was asked to verify against.
type recordingHasher struct {
	auth.PasswordHasher
	verified []string
}

func (h *recordingHasher) Verify(password, hash string) bool {
	h.verified = append(h.verified, hash)
	return h.PasswordHasher.Verify(password, hash)
}

func TestAuthenticator_TimingEqualization(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown identity still runs one comparison", func(t *testing.T) {
		identities := mocks.NewMockIdentityLookup(t)
		hasher := mocks.NewMockPasswordHasher(t)

		hasher.On("Hash", mock.AnythingOfType("string")).Return("$argon2id$dummy", nil).Once()
		authn, err := auth.NewAuthenticator(identities, hasher)
		require.NoError(t, err)

		identities.On("FindByEmail", mock.Anything, "ghost@x.io").Return(nil, auth.ErrNotFound)
		hasher.On("Verify", "pw", "$argon2id$dummy").Return(false).Once()

		verdict, err := authn.Verify(ctx, auth.Submission{Email: "ghost@x.io", Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, auth.ReasonUnknownIdentity, verdict.Reason)
	})

	t.Run("dummy hash follows the primary algorithm", func(t *testing.T) {
		for _, tt := range []struct {
			algorithm string
			prefix    string
		}{
			{auth.AlgorithmArgon2id, "$argon2id$"},
			{auth.AlgorithmBcrypt, "$2"},
		} {
			t.Run(tt.algorithm, func(t *testing.T) {
				primary, err := auth.NewPasswordHasher(auth.HasherConfig{
					Algorithm:  tt.algorithm,
					Argon2:     authtest.CheapArgon2Params,
					BcryptCost: 4,
				})
				require.NoError(t, err)
				hasher := &recordingHasher{PasswordHasher: primary}

				identities := mocks.NewMockIdentityLookup(t)
				identities.On("FindByEmail", mock.Anything, "ghost@x.io").Return(nil, auth.ErrNotFound)
				authn, err := auth.NewAuthenticator(identities, hasher)
				require.NoError(t, err)

				_, err = authn.Verify(ctx, auth.Submission{Email: "ghost@x.io", Password: "pw"})
				require.NoError(t, err)
				require.Len(t, hasher.verified, 1)
				assert.True(t, strings.HasPrefix(hasher.verified[0], tt.prefix), hasher.verified[0])
			})
		}
	})

	t.Run("disabled skips the comparison", func(t *testing.T) {
		identities := mocks.NewMockIdentityLookup(t)
		hasher := mocks.NewMockPasswordHasher(t)

		authn, err := auth.NewAuthenticator(identities, hasher, auth.WithTimingEqualization(false))
		require.NoError(t, err)

		identities.On("FindByEmail", mock.Anything, "ghost@x.io").Return(nil, auth.ErrNotFound)

		verdict, err := authn.Verify(ctx, auth.Submission{Email: "ghost@x.io", Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, auth.ReasonUnknownIdentity, verdict.Reason)
		hasher.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})
}

func TestAuthenticator_StoreUnavailable(t *testing.T) {
	identities := mocks.NewMockIdentityLookup(t)
	hasher := mocks.NewMockPasswordHasher(t)
	authn, err := auth.NewAuthenticator(identities, hasher, auth.WithTimingEqualization(false))
	require.NoError(t, err)

	identities.On("FindByEmail", mock.Anything, "a@x.io").Return(nil, errors.New("connection reset"))

	verdict, err := authn.Verify(context.Background(), auth.Submission{Email: "a@x.io", Password: "pw"})
	require.Error(t, err)
	assert.False(t, verdict.OK())
	assert.NotErrorIs(t, err, auth.ErrNotFound)
	errutil.AssertErrorCode(t, err, "AUTH_STORE_UNAVAILABLE")
}

func TestAuthenticator_NeverLogsPassword(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	identities := mocks.NewMockIdentityLookup(t)
	hasher := mocks.NewMockPasswordHasher(t)
	authn, err := auth.NewAuthenticator(identities, hasher,
		auth.WithTimingEqualization(false),
		auth.WithAuthenticatorLogger(logger))
	require.NoError(t, err)

	p := &auth.Principal{ID: ulid.Make(), Email: "a@x.io", PasswordHash: "stored"}
	identities.On("FindByEmail", mock.Anything, "a@x.io").Return(p, nil)
	hasher.On("Verify", "hunter2-secret", "stored").Return(false)

	verdict, err := authn.Verify(context.Background(), auth.Submission{Email: "a@x.io", Password: "hunter2-secret"})
	require.NoError(t, err)
	assert.Equal(t, auth.ReasonSecretMismatch, verdict.Reason)

	assert.Contains(t, buf.String(), "credential verification failed")
	assert.Contains(t, buf.String(), "secret_mismatch")
	assert.NotContains(t, buf.String(), "hunter2-secret")
}

func TestFailureReason_String(t *testing.T) {
	assert.Equal(t, "none", auth.ReasonNone.String())
	assert.Equal(t, auth.OutcomeUnknownIdentity, auth.ReasonUnknownIdentity.String())
	assert.Equal(t, auth.OutcomeSecretMismatch, auth.ReasonSecretMismatch.String())
	assert.Equal(t, "unknown", auth.FailureReason(42).String())
}
