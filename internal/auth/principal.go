// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// MaxEmailLength is the longest address accepted at signup (RFC 5321 path limit).
const MaxEmailLength = 254

// usernameRegex matches ASCII letters and digits only.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// Principal is an authenticated actor.
type Principal struct {
	ID           ulid.ULID
	FirstName    string
	LastName     string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicProfile is the subset of a Principal that may leave the server.
type PublicProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Profile returns the principal's public profile.
func (p *Principal) Profile() PublicProfile {
	return PublicProfile{
		ID:        p.ID.String(),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
	}
}

// DisplayName returns "First Last", falling back to the username.
func (p *Principal) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Username
	}
	return name
}

// SignupFields are the values submitted to create a Principal.
type SignupFields struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Password  string
}

// Normalize trims surrounding whitespace from every field except the password.
func (f SignupFields) Normalize() SignupFields {
	return SignupFields{
		FirstName: strings.TrimSpace(f.FirstName),
		LastName:  strings.TrimSpace(f.LastName),
		Username:  strings.TrimSpace(f.Username),
		Email:     strings.TrimSpace(f.Email),
		Password:  f.Password,
	}
}

// Validate checks every syntactic constraint and returns a ValidationError
// listing all violations, or nil.
func (f SignupFields) Validate() *ValidationError {
	verr := &ValidationError{}

	if f.FirstName == "" {
		verr.Add(FieldFirstName, "first name is required")
	}
	if f.LastName == "" {
		verr.Add(FieldLastName, "last name is required")
	}
	if msg := usernameProblem(f.Username); msg != "" {
		verr.Add(FieldUsername, msg)
	}
	if msg := emailProblem(f.Email); msg != "" {
		verr.Add(FieldEmail, msg)
	}
	if f.Password == "" {
		verr.Add(FieldPassword, "password is required")
	}

	if verr.empty() {
		return nil
	}
	return verr
}

// ValidateUsername validates a username against the username rules.
func ValidateUsername(username string) error {
	if msg := usernameProblem(username); msg != "" {
		return oops.Code("AUTH_INVALID_USERNAME").With("username", username).Errorf("%s", msg)
	}
	return nil
}

// ValidateEmail validates the syntax of a bare email address.
func ValidateEmail(email string) error {
	if msg := emailProblem(email); msg != "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("%s", msg)
	}
	return nil
}

func usernameProblem(username string) string {
	switch {
	case username == "":
		return "username is required"
	case len(username) < MinUsernameLength:
		return "username must be at least 3 characters"
	case len(username) > MaxUsernameLength:
		return "username must be at most 30 characters"
	case !usernameRegex.MatchString(username):
		return "username may contain only letters and numbers"
	}
	return ""
}

func emailProblem(email string) string {
	if email == "" {
		return "email is required"
	}
	if len(email) > MaxEmailLength {
		return "email is too long"
	}
	// Reject display-name forms such as "Name <a@b.com>": only a bare address is valid.
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "email is not a valid address"
	}
	return ""
}

// PrincipalRepository manages principal persistence.
type PrincipalRepository interface {
	// Create stores a new principal. Returns ErrDuplicateEmail or
	// ErrDuplicateUsername (wrapped) when a uniqueness constraint rejects it.
	Create(ctx context.Context, principal *Principal) error

	// GetByID retrieves a principal by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Principal, error)

	// GetByEmail retrieves a principal by email (case-insensitive).
	// Returns ErrNotFound if no principal has the given email.
	GetByEmail(ctx context.Context, email string) (*Principal, error)

	// GetByUsername retrieves a principal by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*Principal, error)

	// Delete removes a principal.
	Delete(ctx context.Context, id ulid.ULID) error
}
