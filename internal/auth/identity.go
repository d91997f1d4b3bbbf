// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/codes"
)

// DefaultQueryTimeout bounds a single store call when no timeout is configured.
const DefaultQueryTimeout = 5 * time.Second

// IdentityStore adapts a PrincipalRepository for the authentication core.
// Store failures leave it as AUTH_STORE_UNAVAILABLE errors; a missing
// principal is reported as ErrNotFound.
type IdentityStore struct {
	repo    PrincipalRepository
	hasher  PasswordHasher
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewIdentityStore creates an IdentityStore with a no-op logger.
// A zero timeout selects DefaultQueryTimeout.
func NewIdentityStore(repo PrincipalRepository, hasher PasswordHasher, timeout time.Duration) (*IdentityStore, error) {
	return NewIdentityStoreWithLogger(repo, hasher, timeout, slog.New(slog.DiscardHandler))
}

// NewIdentityStoreWithLogger creates an IdentityStore with the provided logger.
func NewIdentityStoreWithLogger(repo PrincipalRepository, hasher PasswordHasher, timeout time.Duration, logger *slog.Logger) (*IdentityStore, error) {
	if repo == nil {
		return nil, oops.Errorf("principal repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &IdentityStore{
		repo:    repo,
		hasher:  hasher,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// FindByEmail looks up a principal by email.
func (s *IdentityStore) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	ctx, span := tracer.Start(ctx, "IdentityStore.FindByEmail")
	defer span.End()

	// Emails are stored trimmed, see SignupFields.Normalize.
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").Wrap(ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		err = s.translateLookup(err, "find principal by email")
		if !errors.Is(err, ErrNotFound) {
			span.SetStatus(codes.Error, "store unavailable")
		}
		return nil, err
	}
	return p, nil
}

// FindByID looks up a principal by identifier.
func (s *IdentityStore) FindByID(ctx context.Context, id ulid.ULID) (*Principal, error) {
	ctx, span := tracer.Start(ctx, "IdentityStore.FindByID")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		err = s.translateLookup(err, "find principal by id")
		if !errors.Is(err, ErrNotFound) {
			span.SetStatus(codes.Error, "store unavailable")
		}
		return nil, err
	}
	return p, nil
}

// Create validates the signup fields, hashes the password, and persists a new
// principal. Validation failures are returned as a *ValidationError (wrapped
// with code AUTH_VALIDATION_FAILED) listing every violated constraint.
func (s *IdentityStore) Create(ctx context.Context, fields SignupFields) (*Principal, error) {
	ctx, span := tracer.Start(ctx, "IdentityStore.Create")
	defer span.End()

	p, err := s.create(ctx, fields)
	switch {
	case err == nil:
		Signups.WithLabelValues(SignupCreated).Inc()
		s.logger.InfoContext(ctx, "principal created", "principal_id", p.ID.String())
	case isValidation(err):
		Signups.WithLabelValues(SignupRejected).Inc()
		verr, _ := AsValidationError(err)
		s.logger.InfoContext(ctx, "signup rejected", "fields", verr.Fields())
	default:
		Signups.WithLabelValues(SignupError).Inc()
		span.SetStatus(codes.Error, "signup failed")
	}
	return p, err
}

func (s *IdentityStore) create(ctx context.Context, fields SignupFields) (*Principal, error) {
	fields = fields.Normalize()

	verr := fields.Validate()
	if verr == nil {
		verr = &ValidationError{}
	}

	// Probe uniqueness so both duplicate fields can be reported at once.
	// The unique indexes remain the authority; see the Create error handling below.
	if !verr.Has(FieldEmail) {
		if err := s.probe(ctx, func(ctx context.Context) error {
			_, err := s.repo.GetByEmail(ctx, fields.Email)
			return err
		}); err != nil {
			if !errors.Is(err, errTaken) {
				return nil, err
			}
			verr.Add(FieldEmail, "email is already registered")
		}
	}
	if !verr.Has(FieldUsername) {
		if err := s.probe(ctx, func(ctx context.Context) error {
			_, err := s.repo.GetByUsername(ctx, fields.Username)
			return err
		}); err != nil {
			if !errors.Is(err, errTaken) {
				return nil, err
			}
			verr.Add(FieldUsername, "username is already taken")
		}
	}
	if !verr.empty() {
		return nil, validationFailed(verr)
	}

	// Hash before the record exists anywhere durable.
	hash, err := s.hasher.Hash(fields.Password)
	if err != nil {
		if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == "AUTH_PASSWORD_TOO_LONG" {
			return nil, validationFailed(&ValidationError{Violations: []FieldViolation{
				{Field: FieldPassword, Message: "password is too long"},
			}})
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}

	now := s.now().UTC()
	principal := &Principal{
		ID:           ulid.Make(),
		FirstName:    fields.FirstName,
		LastName:     fields.LastName,
		Username:     fields.Username,
		Email:        fields.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	createCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Create(createCtx, principal); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, validationFailed(&ValidationError{Violations: []FieldViolation{
				{Field: FieldEmail, Message: "email is already registered"},
			}})
		case errors.Is(err, ErrDuplicateUsername):
			return nil, validationFailed(&ValidationError{Violations: []FieldViolation{
				{Field: FieldUsername, Message: "username is already taken"},
			}})
		default:
			return nil, oops.Code("AUTH_STORE_UNAVAILABLE").
				With("operation", "create principal").
				Wrap(err)
		}
	}
	return principal, nil
}

// errTaken marks a probe that found an existing record.
var errTaken = errors.New("taken")

func (s *IdentityStore) probe(ctx context.Context, lookup func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := lookup(ctx)
	switch {
	case err == nil:
		return errTaken
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return oops.Code("AUTH_STORE_UNAVAILABLE").
			With("operation", "probe uniqueness").
			Wrap(err)
	}
}

func (s *IdentityStore) translateLookup(err error, operation string) error {
	if errors.Is(err, ErrNotFound) {
		return oops.Code("PRINCIPAL_NOT_FOUND").Wrap(ErrNotFound)
	}
	return oops.Code("AUTH_STORE_UNAVAILABLE").
		With("operation", operation).
		Wrap(err)
}

func validationFailed(verr *ValidationError) error {
	return oops.Code("AUTH_VALIDATION_FAILED").Wrap(verr)
}

func isValidation(err error) bool {
	_, ok := AsValidationError(err)
	return ok
}
