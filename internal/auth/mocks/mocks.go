// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/sessionauth/internal/auth"
)

// TestingT is the subset of testing.TB the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockPrincipalRepository mocks auth.PrincipalRepository.
type MockPrincipalRepository struct {
	mock.Mock
}

// NewMockPrincipalRepository creates a mock that asserts its expectations on cleanup.
func NewMockPrincipalRepository(t TestingT) *MockPrincipalRepository {
	m := &MockPrincipalRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPrincipalRepository) Create(ctx context.Context, principal *auth.Principal) error {
	args := m.Called(ctx, principal)
	return args.Error(0)
}

func (m *MockPrincipalRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Principal, error) {
	args := m.Called(ctx, id)
	return principalArg(args, 0), args.Error(1)
}

func (m *MockPrincipalRepository) GetByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	args := m.Called(ctx, email)
	return principalArg(args, 0), args.Error(1)
}

func (m *MockPrincipalRepository) GetByUsername(ctx context.Context, username string) (*auth.Principal, error) {
	args := m.Called(ctx, username)
	return principalArg(args, 0), args.Error(1)
}

func (m *MockPrincipalRepository) Delete(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) bool {
	args := m.Called(password, hash)
	return args.Bool(0)
}

// MockIdentityLookup mocks auth.IdentityLookup.
type MockIdentityLookup struct {
	mock.Mock
}

// NewMockIdentityLookup creates a mock that asserts its expectations on cleanup.
func NewMockIdentityLookup(t TestingT) *MockIdentityLookup {
	m := &MockIdentityLookup{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockIdentityLookup) FindByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	args := m.Called(ctx, email)
	return principalArg(args, 0), args.Error(1)
}

func (m *MockIdentityLookup) FindByID(ctx context.Context, id ulid.ULID) (*auth.Principal, error) {
	args := m.Called(ctx, id)
	return principalArg(args, 0), args.Error(1)
}

// MockWebSessionRepository mocks auth.WebSessionRepository.
type MockWebSessionRepository struct {
	mock.Mock
}

// NewMockWebSessionRepository creates a mock that asserts its expectations on cleanup.
func NewMockWebSessionRepository(t TestingT) *MockWebSessionRepository {
	m := &MockWebSessionRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockWebSessionRepository) Create(ctx context.Context, session *auth.WebSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockWebSessionRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.WebSession, error) {
	args := m.Called(ctx, id)
	return sessionArg(args, 0), args.Error(1)
}

func (m *MockWebSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.WebSession, error) {
	args := m.Called(ctx, tokenHash)
	return sessionArg(args, 0), args.Error(1)
}

func (m *MockWebSessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	args := m.Called(ctx, id, lastSeen)
	return args.Error(0)
}

func (m *MockWebSessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockWebSessionRepository) DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) error {
	args := m.Called(ctx, principalID)
	return args.Error(0)
}

func (m *MockWebSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func principalArg(args mock.Arguments, i int) *auth.Principal {
	if v := args.Get(i); v != nil {
		return v.(*auth.Principal)
	}
	return nil
}

func sessionArg(args mock.Arguments, i int) *auth.WebSession {
	if v := args.Get(i); v != nil {
		return v.(*auth.WebSession)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ auth.PrincipalRepository  = (*MockPrincipalRepository)(nil)
	_ auth.PasswordHasher       = (*MockPasswordHasher)(nil)
	_ auth.IdentityLookup       = (*MockIdentityLookup)(nil)
	_ auth.WebSessionRepository = (*MockWebSessionRepository)(nil)
)
