// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/samber/oops"

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/internal/config"
)

// CookieOptions returns the session cookie attributes for cfg.
func CookieOptions(cfg config.SessionConfig) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewSessionStore builds the session backend selected by cfg.Store. repo is
// only used by the postgres backend.
func NewSessionStore(cfg config.SessionConfig, repo auth.WebSessionRepository, logger *slog.Logger) (sessions.Store, error) {
	opts := CookieOptions(cfg)

	switch cfg.Store {
	case config.StorePostgres:
		return NewPGStore(repo, opts, logger)
	case config.StoreCookie:
		if len(cfg.HashKey) < 32 {
			return nil, oops.Code("SESSION_STORE_INIT_FAILED").Errorf("cookie store needs a hash key of at least 32 bytes")
		}
		keys := [][]byte{[]byte(cfg.HashKey)}
		if cfg.BlockKey != "" {
			keys = append(keys, []byte(cfg.BlockKey))
		}
		store := sessions.NewCookieStore(keys...)
		store.Options = &opts
		store.MaxAge(opts.MaxAge)
		return store, nil
	default:
		return nil, oops.Code("SESSION_STORE_INIT_FAILED").With("store", cfg.Store).Errorf("unknown session store %q", cfg.Store)
	}
}

// NewRejector builds the rejection policy selected by cfg.Reject.
func NewRejector(cfg config.SessionConfig) (Rejector, error) {
	switch cfg.Reject {
	case config.RejectRedirect:
		return RedirectRejector{Location: cfg.ErrorPath}, nil
	case config.RejectStatus:
		return StatusRejector{}, nil
	default:
		return nil, oops.Code("REJECTOR_INIT_FAILED").With("reject", cfg.Reject).Errorf("unknown rejection policy %q", cfg.Reject)
	}
}
