// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/sessionauth/internal/auth"
)

// loadedKey remembers which principal the stored record was issued to.
type loadedKey struct{}

// PGStore is a sessions.Store backed by auth.WebSessionRepository. The
// cookie carries a random token; the repository keeps its hash, the
// principal id, and the expiry. Anonymous sessions are never persisted.
type PGStore struct {
	repo    auth.WebSessionRepository
	options sessions.Options
	now     func() time.Time
	logger  *slog.Logger
}

// NewPGStore creates a PGStore. opts.MaxAge must be positive; it is the
// server-side lifetime of every issued session.
func NewPGStore(repo auth.WebSessionRepository, opts sessions.Options, logger *slog.Logger) (*PGStore, error) {
	if repo == nil {
		return nil, oops.Code("SESSION_STORE_INIT_FAILED").Errorf("web session repository is required")
	}
	if opts.MaxAge <= 0 {
		return nil, oops.Code("SESSION_STORE_INIT_FAILED").With("max_age", opts.MaxAge).Errorf("max age must be positive")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PGStore{repo: repo, options: opts, now: time.Now, logger: logger}, nil
}

// Get returns the session cached in the request registry, loading it once.
func (s *PGStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	//nolint:wrapcheck // registry returns this store's own errors
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie. A missing, unknown,
// or expired token yields a new empty session.
func (s *PGStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := s.options
	session.Options = &opts
	session.IsNew = true

	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return session, nil
	}

	record, err := s.repo.GetByTokenHash(r.Context(), auth.HashSessionToken(cookie.Value))
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return session, nil
		}
		return session, oops.Code("SESSION_LOAD_FAILED").With("session", name).Wrap(err)
	}
	if record.IsExpiredAt(s.now()) {
		return session, nil
	}

	principal := record.PrincipalID.String()
	session.ID = record.ID.String()
	session.Values[tokenKey] = principal
	session.Values[loadedKey{}] = principal
	session.IsNew = false
	return session, nil
}

// Save persists the session and writes its cookie. A session with a
// negative MaxAge or no principal is deleted and its cookie expired. A
// session whose principal changed gets a new token.
func (s *PGStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx := r.Context()
	opts := s.options
	if session.Options != nil {
		opts = *session.Options
	}

	principal, _ := session.Values[tokenKey].(string)
	if opts.MaxAge < 0 || principal == "" {
		if err := s.deleteRecord(r, session); err != nil {
			return err
		}
		opts.MaxAge = -1
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", &opts))
		return nil
	}

	principalID, err := ulid.Parse(principal)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("principal_id", principal).Wrap(err)
	}

	now := s.now()
	if loaded, _ := session.Values[loadedKey{}].(string); session.ID != "" && loaded == principal {
		id, err := ulid.Parse(session.ID)
		if err != nil {
			return oops.Code("SESSION_SAVE_FAILED").With("session_id", session.ID).Wrap(err)
		}
		if err := s.repo.UpdateLastSeen(ctx, id, now); err != nil {
			return oops.Code("SESSION_SAVE_FAILED").With("session_id", session.ID).Wrap(err)
		}
		return nil
	}

	// Rotate the token whenever the principal changes.
	if err := s.deleteRecord(r, session); err != nil {
		return err
	}

	token, hash, err := auth.GenerateSessionToken()
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").Wrap(err)
	}
	maxAge := opts.MaxAge
	if maxAge == 0 {
		maxAge = s.options.MaxAge
	}
	record, err := auth.NewWebSession(principalID, hash, r.UserAgent(), clientIP(r), now.Add(time.Duration(maxAge)*time.Second))
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").Wrap(err)
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("principal_id", principal).Wrap(err)
	}

	session.ID = record.ID.String()
	session.Values[loadedKey{}] = principal
	session.IsNew = false
	opts.MaxAge = maxAge
	http.SetCookie(w, sessions.NewCookie(session.Name(), token, &opts))
	return nil
}

func (s *PGStore) deleteRecord(r *http.Request, session *sessions.Session) error {
	if session.ID == "" {
		return nil
	}
	id, err := ulid.Parse(session.ID)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("session_id", session.ID).Wrap(err)
	}
	if err := s.repo.Delete(r.Context(), id); err != nil && !errors.Is(err, auth.ErrNotFound) {
		return oops.Code("SESSION_DELETE_FAILED").With("session_id", session.ID).Wrap(err)
	}
	s.logger.DebugContext(r.Context(), "web session deleted", "session_id", session.ID)
	session.ID = ""
	delete(session.Values, loadedKey{})
	return nil
}

// clientIP returns the host part of the request's remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
