// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web is the HTTP surface of sessionauth: the session gate that
// derives login state per request, the auth handlers, and their server.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/samber/oops"

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/pkg/errutil"
)

// tokenKey is the only session value: the serialized principal identifier.
const tokenKey = "principal"

// Guard names used when counting rejections.
const (
	GuardAuthenticated = "authenticated"
	GuardAnonymous     = "anonymous"
)

// TokenCodec converts principals to session tokens and back.
type TokenCodec interface {
	Serialize(p *auth.Principal) auth.Token
	Deserialize(ctx context.Context, token auth.Token) (*auth.Principal, error)
}

// RejectionRecorder counts guard rejections.
type RejectionRecorder interface {
	RecordRejection(guard string)
}

// State is the login state of one request. A nil State is Anonymous.
type State struct {
	principal *auth.Principal
	session   *sessions.Session
}

// Principal returns the authenticated principal, or nil when Anonymous.
func (s *State) Principal() *auth.Principal {
	if s == nil {
		return nil
	}
	return s.principal
}

// IsAuthenticated reports whether s carries a principal.
func IsAuthenticated(s *State) bool {
	return s.Principal() != nil
}

// IsAnonymous is the exact inverse of IsAuthenticated.
func IsAnonymous(s *State) bool {
	return !IsAuthenticated(s)
}

type stateKey struct{}

// StateFrom returns the State attached to ctx by Gate.Attach, or nil.
func StateFrom(ctx context.Context) *State {
	s, _ := ctx.Value(stateKey{}).(*State)
	return s
}

// PrincipalFrom returns the authenticated principal of ctx, or nil.
func PrincipalFrom(ctx context.Context) *auth.Principal {
	return StateFrom(ctx).Principal()
}

// Gate derives each request's login state from its session and guards
// handlers on that state. Build one at startup and share it.
type Gate struct {
	store    sessions.Store
	codec    TokenCodec
	name     string
	rejector Rejector
	recorder RejectionRecorder
	logger   *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithRejector sets the policy used when a guard fails.
func WithRejector(r Rejector) GateOption {
	return func(g *Gate) {
		g.rejector = r
	}
}

// WithRejectionRecorder counts guard rejections.
func WithRejectionRecorder(r RejectionRecorder) GateOption {
	return func(g *Gate) {
		g.recorder = r
	}
}

// WithGateLogger sets the logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate creates a Gate reading the session called name from store.
// The default rejection policy is StatusRejector.
func NewGate(store sessions.Store, codec TokenCodec, name string, opts ...GateOption) (*Gate, error) {
	if store == nil {
		return nil, oops.Code("GATE_INIT_FAILED").Errorf("session store is required")
	}
	if codec == nil {
		return nil, oops.Code("GATE_INIT_FAILED").Errorf("token codec is required")
	}
	if name == "" {
		return nil, oops.Code("GATE_INIT_FAILED").Errorf("session name is required")
	}

	g := &Gate{
		store:    store,
		codec:    codec,
		name:     name,
		rejector: StatusRejector{},
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Attach resolves the request's session into a State and stores it in the
// request context. A session naming a principal that no longer exists is
// cleared. A store outage leaves the request Anonymous without clearing.
func (g *Gate) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		state := &State{session: g.load(r)}

		token, _ := state.session.Values[tokenKey].(string)
		principal, err := g.codec.Deserialize(ctx, auth.Token(token))
		switch {
		case err != nil:
			errutil.LogErrorContext(ctx, g.logger, "session resolution failed", err)
		case principal == nil && token != "":
			g.clear(w, r, state.session)
		default:
			state.principal = principal
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, stateKey{}, state)))
	})
}

// load returns the request's session. Unreadable cookies yield a fresh one.
func (g *Gate) load(r *http.Request) *sessions.Session {
	session, err := g.store.Get(r, g.name)
	if err != nil {
		level := slog.LevelWarn
		var scErr securecookie.Error
		if errors.As(err, &scErr) && scErr.IsDecode() {
			level = slog.LevelDebug
		}
		g.logger.Log(r.Context(), level, "session cookie unreadable", errutil.Attrs(err)...)
	}
	if session == nil {
		session = sessions.NewSession(g.store, g.name)
		session.IsNew = true
	}
	return session
}

// session returns the session Attach loaded, or loads it.
func (g *Gate) session(r *http.Request) *sessions.Session {
	if state := StateFrom(r.Context()); state != nil && state.session != nil {
		return state.session
	}
	return g.load(r)
}

func (g *Gate) clear(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	delete(session.Values, tokenKey)
	if session.Options == nil {
		if err := session.Save(r, w); err != nil {
			errutil.LogErrorContext(r.Context(), g.logger, "clearing stale session failed", err)
		}
		return
	}
	// The session stays reusable for a login later in the same request.
	maxAge := session.Options.MaxAge
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		errutil.LogErrorContext(r.Context(), g.logger, "clearing stale session failed", err)
	}
	session.Options.MaxAge = maxAge
}

// RequireAuthenticated invokes next only for Authenticated requests.
func (g *Gate) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsAnonymous(StateFrom(r.Context())) {
			g.reject(w, r, GuardAuthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAnonymous invokes next only for Anonymous requests.
func (g *Gate) RequireAnonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsAuthenticated(StateFrom(r.Context())) {
			g.reject(w, r, GuardAnonymous)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, guard string) {
	if g.recorder != nil {
		g.recorder.RecordRejection(guard)
	}
	g.Reject(w, r)
}

// Reject answers the request with the configured rejection policy.
func (g *Gate) Reject(w http.ResponseWriter, r *http.Request) {
	g.rejector.Reject(w, r)
}

// Login moves the request from Anonymous to Authenticated by writing p's
// token into the session. Nothing is written if ctx is already done.
func (g *Gate) Login(w http.ResponseWriter, r *http.Request, p *auth.Principal) error {
	if p == nil {
		return oops.Code("SESSION_LOGIN_FAILED").Errorf("principal is required")
	}
	if err := r.Context().Err(); err != nil {
		return oops.Code("SESSION_LOGIN_ABORTED").With("principal_id", p.ID.String()).Wrap(err)
	}

	session := g.session(r)
	session.Values[tokenKey] = string(g.codec.Serialize(p))
	if err := session.Save(r, w); err != nil {
		return oops.Code("SESSION_LOGIN_FAILED").With("principal_id", p.ID.String()).Wrap(err)
	}

	if state := StateFrom(r.Context()); state != nil {
		state.principal = p
	}
	g.logger.InfoContext(r.Context(), "session authenticated", "principal_id", p.ID.String())
	return nil
}

// Logout clears the session token and expires the cookie. Logging out an
// Anonymous request succeeds.
func (g *Gate) Logout(w http.ResponseWriter, r *http.Request) error {
	session := g.session(r)
	delete(session.Values, tokenKey)
	if session.Options == nil {
		session.Options = &sessions.Options{Path: "/"}
	}
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		return oops.Code("SESSION_LOGOUT_FAILED").Wrap(err)
	}

	if state := StateFrom(r.Context()); state != nil {
		state.principal = nil
	}
	return nil
}
