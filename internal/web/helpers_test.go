// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/internal/auth/authtest"
	"github.com/holomush/sessionauth/internal/config"
	"github.com/holomush/sessionauth/internal/web"
)

const testHashKey = "0123456789abcdef0123456789abcdef"

// stack is a fully wired auth surface over in-memory repositories.
type stack struct {
	principals *authtest.PrincipalRepository
	sessions   *authtest.WebSessionRepository
	identities *auth.IdentityStore
	gate       *web.Gate
	handler    *web.AuthHandler
	server     *httptest.Server
}

func sessionConfig(backend, reject string) config.SessionConfig {
	return config.SessionConfig{
		Store:      backend,
		CookieName: "sid",
		MaxAge:     time.Hour,
		Secure:     false,
		HashKey:    testHashKey,
		Reject:     reject,
		ErrorPath:  web.PathError,
	}
}

func newStack(t *testing.T, backend, reject string) *stack {
	t.Helper()

	s := &stack{
		principals: authtest.NewPrincipalRepository(),
		sessions:   authtest.NewWebSessionRepository(),
	}
	hasher := authtest.Hasher()

	var err error
	s.identities, err = auth.NewIdentityStore(s.principals, hasher, time.Second)
	require.NoError(t, err)
	authenticator, err := auth.NewAuthenticator(s.identities, hasher)
	require.NoError(t, err)
	codec, err := auth.NewSessionCodec(s.identities)
	require.NoError(t, err)

	cfg := sessionConfig(backend, reject)
	store, err := web.NewSessionStore(cfg, s.sessions, nil)
	require.NoError(t, err)
	rejector, err := web.NewRejector(cfg)
	require.NoError(t, err)

	s.gate, err = web.NewGate(store, codec, cfg.CookieName, web.WithRejector(rejector))
	require.NoError(t, err)
	s.handler, err = web.NewAuthHandler(s.identities, authenticator, s.gate, nil)
	require.NoError(t, err)

	s.server = httptest.NewServer(web.NewRouter(s.handler, s.gate, nil))
	t.Cleanup(s.server.Close)
	return s
}

// client returns a cookie-keeping client. Redirects are followed only when
// follow is true.
func (s *stack) client(t *testing.T, follow bool) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := &http.Client{Jar: jar, Timeout: 10 * time.Second}
	if !follow {
		c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return c
}

type response struct {
	status int
	header http.Header
	body   string
}

func (r response) json(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.body), &out), "body: %q", r.body)
	return out
}

func do(t *testing.T, c *http.Client, req *http.Request) response {
	t.Helper()
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: string(body)}
}

func (s *stack) postJSON(t *testing.T, c *http.Client, path string, body any) response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, strings.NewReader(string(data)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return do(t, c, req)
}

func (s *stack) postForm(t *testing.T, c *http.Client, path string, form url.Values) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(t, c, req)
}

func (s *stack) get(t *testing.T, c *http.Client, path string) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	require.NoError(t, err)
	return do(t, c, req)
}

func signupBody(email, password string) map[string]string {
	return map[string]string{
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"username":  strings.ReplaceAll(strings.Split(email, "@")[0], ".", "") + "user",
		"email":     email,
		"password":  password,
	}
}

func loginBody(email, password string) map[string]string {
	return map[string]string{"email": email, "password": password}
}

func fieldsOf(t *testing.T, r response) []string {
	t.Helper()
	body := r.json(t)
	errs, ok := body["errors"].([]any)
	require.True(t, ok, "expected errors array in %s", r.body)
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		m, ok := e.(map[string]any)
		require.True(t, ok)
		fields = append(fields, m["field"].(string))
	}
	return fields
}
