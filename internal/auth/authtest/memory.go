// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides in-memory repositories for tests that need
// realistic store behavior (uniqueness, not-found) without a database.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/sessionauth/internal/auth"
)

// PrincipalRepository is an in-memory auth.PrincipalRepository with
// case-insensitive unique email and username.
type PrincipalRepository struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]auth.Principal
	byEmail    map[string]ulid.ULID
	byUsername map[string]ulid.ULID
}

// NewPrincipalRepository creates an empty repository.
func NewPrincipalRepository() *PrincipalRepository {
	return &PrincipalRepository{
		byID:       make(map[ulid.ULID]auth.Principal),
		byEmail:    make(map[string]ulid.ULID),
		byUsername: make(map[string]ulid.ULID),
	}
}

// Create stores a copy of principal.
func (r *PrincipalRepository) Create(_ context.Context, principal *auth.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(principal.Email)
	username := strings.ToLower(principal.Username)
	if _, ok := r.byEmail[email]; ok {
		return oops.Code("PRINCIPAL_DUPLICATE").With("field", "email").Wrap(auth.ErrDuplicateEmail)
	}
	if _, ok := r.byUsername[username]; ok {
		return oops.Code("PRINCIPAL_DUPLICATE").With("field", "username").Wrap(auth.ErrDuplicateUsername)
	}

	r.byID[principal.ID] = *principal
	r.byEmail[email] = principal.ID
	r.byUsername[username] = principal.ID
	return nil
}

// GetByID retrieves a principal by ID.
func (r *PrincipalRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(id)
}

// GetByEmail retrieves a principal by email (case-insensitive).
func (r *PrincipalRepository) GetByEmail(_ context.Context, email string) (*auth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return r.get(id)
}

// GetByUsername retrieves a principal by username (case-insensitive).
func (r *PrincipalRepository) GetByUsername(_ context.Context, username string) (*auth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return r.get(id)
}

// Delete removes a principal.
func (r *PrincipalRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byEmail, strings.ToLower(p.Email))
	delete(r.byUsername, strings.ToLower(p.Username))
	return nil
}

// Len returns the number of stored principals.
func (r *PrincipalRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *PrincipalRepository) get(id ulid.ULID) (*auth.Principal, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &p, nil
}

// WebSessionRepository is an in-memory auth.WebSessionRepository.
type WebSessionRepository struct {
	mu       sync.RWMutex
	sessions map[ulid.ULID]auth.WebSession
}

// NewWebSessionRepository creates an empty repository.
func NewWebSessionRepository() *WebSessionRepository {
	return &WebSessionRepository{sessions: make(map[ulid.ULID]auth.WebSession)}
}

// Create stores a copy of session.
func (r *WebSessionRepository) Create(_ context.Context, session *auth.WebSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

// GetByID retrieves a session by its ID.
func (r *WebSessionRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.WebSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &s, nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *WebSessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.WebSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.TokenHash == tokenHash {
			return &s, nil
		}
	}
	return nil, auth.ErrNotFound
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *WebSessionRepository) UpdateLastSeen(_ context.Context, id ulid.ULID, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	s.LastSeenAt = lastSeen
	r.sessions[id] = s
	return nil
}

// Delete removes a session by ID.
func (r *WebSessionRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return auth.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

// DeleteByPrincipal removes all sessions for a principal.
func (r *WebSessionRepository) DeleteByPrincipal(_ context.Context, principalID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.PrincipalID == principalID {
			delete(r.sessions, id)
		}
	}
	return nil
}

// DeleteExpired removes expired sessions.
func (r *WebSessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var n int64
	for id, s := range r.sessions {
		if s.IsExpiredAt(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (r *WebSessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Compile-time interface checks.
var (
	_ auth.PrincipalRepository  = (*PrincipalRepository)(nil)
	_ auth.WebSessionRepository = (*WebSessionRepository)(nil)
)
