// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/holomush/sessionauth/internal/logging"
)

// RequestIDHeader carries the per-request identifier in both directions.
const RequestIDHeader = "X-Request-ID"

// Route paths.
const (
	PathSignup  = "/auth/signup"
	PathLogin   = "/auth/login"
	PathLogout  = "/auth/logout"
	PathProfile = "/auth/profile"
	PathError   = "/auth/error"
)

// Instrumenter wraps a route handler with request metrics.
type Instrumenter interface {
	Instrument(route string, h http.Handler) http.Handler
}

// NewRouter mounts the auth routes. Every request passes through the gate's
// Attach before routing; signup and login require Anonymous, profile
// requires Authenticated. inst may be nil.
func NewRouter(h *AuthHandler, gate *Gate, inst Instrumenter) http.Handler {
	mux := http.NewServeMux()

	handle := func(method, path string, handler http.Handler) {
		handler = otelhttp.NewHandler(handler, method+" "+path)
		if inst != nil {
			handler = inst.Instrument(path, handler)
		}
		mux.Handle(method+" "+path, handler)
	}

	handle(http.MethodPost, PathSignup, gate.RequireAnonymous(http.HandlerFunc(h.Signup)))
	handle(http.MethodPost, PathLogin, gate.RequireAnonymous(http.HandlerFunc(h.Login)))
	handle(http.MethodGet, PathLogout, http.HandlerFunc(h.Logout))
	handle(http.MethodGet, PathProfile, gate.RequireAuthenticated(http.HandlerFunc(h.Profile)))
	handle(http.MethodGet, PathError, http.HandlerFunc(h.Error))

	return withRequestID(gate.Attach(mux))
}

// withRequestID tags the request context with the client's X-Request-ID or
// a fresh ULID, and echoes it in the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}
