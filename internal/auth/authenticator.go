// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// FailureReason distinguishes failed verifications for logging and metrics.
// Clients never see it.
type FailureReason int

// Failure reasons.
const (
	ReasonNone FailureReason = iota
	ReasonUnknownIdentity
	ReasonSecretMismatch
)

// String implements fmt.Stringer.
func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnknownIdentity:
		return OutcomeUnknownIdentity
	case ReasonSecretMismatch:
		return OutcomeSecretMismatch
	default:
		return "unknown"
	}
}

// Submission is a transient email and password pair presented at login.
type Submission struct {
	Email    string
	Password string
}

// LogValue keeps the password out of structured logs.
func (s Submission) LogValue() slog.Value {
	return slog.GroupValue(slog.String("email", s.Email))
}

// Verdict is the outcome of a verification attempt. Principal is set on
// success; Reason is set on failure.
type Verdict struct {
	Principal *Principal
	Reason    FailureReason
}

// OK reports whether the verification succeeded.
func (v Verdict) OK() bool {
	return v.Principal != nil && v.Reason == ReasonNone
}

// IdentityLookup is the read side of the identity store.
type IdentityLookup interface {
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id ulid.ULID) (*Principal, error)
}

// Authenticator verifies credential submissions.
type Authenticator struct {
	identities     IdentityLookup
	hasher         PasswordHasher
	logger         *slog.Logger
	equalizeTiming bool
	dummyHash      string
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithTimingEqualization controls whether an unknown identity still costs one
// password comparison against a dummy hash. Enabled by default.
//
// The dummy is hashed with the primary algorithm. While principals still hold
// hashes in the legacy algorithm, logins for those principals take a
// different time than logins for unknown emails.
func WithTimingEqualization(enabled bool) AuthenticatorOption {
	return func(a *Authenticator) {
		a.equalizeTiming = enabled
	}
}

// WithAuthenticatorLogger sets the logger.
func WithAuthenticatorLogger(logger *slog.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// dummyPassword is hashed once at construction so the dummy comparison
// runs with the configured work factor.
//
//nolint:gosec // G101: not a credential; only used to burn equivalent CPU.
const dummyPassword = "sessionauth-timing-equalization"

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(identities IdentityLookup, hasher PasswordHasher, opts ...AuthenticatorOption) (*Authenticator, error) {
	if identities == nil {
		return nil, oops.Errorf("identity lookup is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}

	a := &Authenticator{
		identities:     identities,
		hasher:         hasher,
		logger:         slog.New(slog.DiscardHandler),
		equalizeTiming: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		return nil, oops.Errorf("logger is required")
	}

	if a.equalizeTiming {
		hash, err := hasher.Hash(dummyPassword)
		if err != nil {
			return nil, oops.Code("AUTH_INIT_FAILED").
				With("operation", "hash dummy password").
				Wrap(err)
		}
		a.dummyHash = hash
	}
	return a, nil
}

// Verify checks a submission against the identity store. The returned error
// is non-nil only when the store could not be consulted; credential failures
// are reported through the Verdict.
func (a *Authenticator) Verify(ctx context.Context, sub Submission) (Verdict, error) {
	ctx, span := tracer.Start(ctx, "Authenticator.Verify")
	defer span.End()

	start := time.Now()
	defer func() { VerifyDuration.Observe(time.Since(start).Seconds()) }()

	principal, err := a.identities.FindByEmail(ctx, sub.Email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			LoginAttempts.WithLabelValues(OutcomeError).Inc()
			span.SetStatus(codes.Error, "identity lookup failed")
			return Verdict{}, oops.Code("AUTH_STORE_UNAVAILABLE").
				With("operation", "verify credentials").
				Wrap(err)
		}

		if a.equalizeTiming {
			// Result discarded; only the cost matters.
			_ = a.hasher.Verify(sub.Password, a.dummyHash)
		}
		return a.fail(ctx, span, sub, ReasonUnknownIdentity), nil
	}

	if !a.hasher.Verify(sub.Password, principal.PasswordHash) {
		return a.fail(ctx, span, sub, ReasonSecretMismatch), nil
	}

	LoginAttempts.WithLabelValues(OutcomeSuccess).Inc()
	span.SetAttributes(attribute.String("auth.outcome", OutcomeSuccess))
	a.logger.InfoContext(ctx, "credentials verified", "principal_id", principal.ID.String())
	return Verdict{Principal: principal}, nil
}

type attributeSetter interface {
	SetAttributes(kv ...attribute.KeyValue)
}

func (a *Authenticator) fail(ctx context.Context, span attributeSetter, sub Submission, reason FailureReason) Verdict {
	LoginAttempts.WithLabelValues(reason.String()).Inc()
	span.SetAttributes(attribute.String("auth.outcome", reason.String()))
	a.logger.InfoContext(ctx, "credential verification failed",
		"submission", sub,
		"reason", reason.String(),
	)
	return Verdict{Reason: reason}
}
