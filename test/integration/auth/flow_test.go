// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/sessionauth/internal/web"
)

// browser is a cookie-keeping client that does not follow redirects.
type browser struct {
	client *http.Client
}

func newBrowser() *browser {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &browser{client: &http.Client{
		Jar:           jar,
		Timeout:       10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}}
}

type response struct {
	status   int
	location string
	body     []byte
}

func (r response) json() map[string]any {
	var out map[string]any
	Expect(json.Unmarshal(r.body, &out)).To(Succeed(), string(r.body))
	return out
}

func (b *browser) do(method, path string, body any) response {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(suite.ctx, method, suite.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return response{status: resp.StatusCode, location: resp.Header.Get("Location"), body: raw}
}

func signupBody(username, email string) map[string]string {
	return map[string]string{
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"username":  username,
		"email":     email,
		"password":  "analytical-engine-1843",
	}
}

func loginBody(email, password string) map[string]string {
	return map[string]string{"email": email, "password": password}
}

func sessionCount() int {
	var n int
	Expect(suite.pool.QueryRow(suite.ctx, `SELECT COUNT(*) FROM web_sessions`).Scan(&n)).To(Succeed())
	return n
}

func uniqueSuffix() string {
	return strings.ToLower(ulid.Make().String()[14:])
}

var _ = Describe("Session authentication", func() {
	var (
		b        *browser
		username string
		email    string
	)

	BeforeEach(func() {
		b = newBrowser()
		suffix := uniqueSuffix()
		username = "ada" + suffix
		email = "ada." + suffix + "@example.com"
	})

	Describe("signup", func() {
		It("creates a principal once", func() {
			resp := b.do(http.MethodPost, web.PathSignup, signupBody(username, email))
			Expect(resp.status).To(Equal(http.StatusOK))
			Expect(resp.json()).To(HaveKeyWithValue("msg", "user created"))

			resp = b.do(http.MethodPost, web.PathSignup, signupBody(username+"x", email))
			Expect(resp.status).To(Equal(http.StatusBadRequest))
			body := resp.json()
			Expect(body).To(HaveKeyWithValue("msg", "error creating user"))
			Expect(body["errors"]).To(ContainElement(HaveKeyWithValue("field", "email")))
		})

		It("treats email case-insensitively", func() {
			Expect(b.do(http.MethodPost, web.PathSignup, signupBody(username, email)).status).
				To(Equal(http.StatusOK))

			resp := b.do(http.MethodPost, web.PathSignup, signupBody(username+"x", "ADA."+email[4:]))
			Expect(resp.status).To(Equal(http.StatusBadRequest))
		})

		It("reports every invalid field", func() {
			resp := b.do(http.MethodPost, web.PathSignup, map[string]string{
				"firstName": "", "lastName": "", "username": "", "email": "not-an-email", "password": "",
			})
			Expect(resp.status).To(Equal(http.StatusBadRequest))
			Expect(resp.json()["errors"]).To(HaveLen(5))
		})
	})

	Describe("a full session", func() {
		BeforeEach(func() {
			Expect(b.do(http.MethodPost, web.PathSignup, signupBody(username, email)).status).
				To(Equal(http.StatusOK))
		})

		It("logs in, reads the profile, and logs out", func() {
			before := sessionCount()

			resp := b.do(http.MethodPost, web.PathLogin, loginBody(email, "analytical-engine-1843"))
			Expect(resp.status).To(Equal(http.StatusOK))
			profile := resp.json()
			Expect(profile).To(HaveKeyWithValue("email", email))
			Expect(profile).To(HaveKeyWithValue("firstName", "Ada"))
			Expect(profile).To(HaveKeyWithValue("lastName", "Lovelace"))
			Expect(profile).To(HaveKey("id"))
			Expect(profile).NotTo(HaveKey("password"))
			Expect(sessionCount()).To(Equal(before + 1))

			resp = b.do(http.MethodGet, web.PathProfile, nil)
			Expect(resp.status).To(Equal(http.StatusOK))
			Expect(resp.json()).To(HaveKeyWithValue("msg", "logged in as Ada Lovelace <"+email+">"))

			resp = b.do(http.MethodGet, web.PathLogout, nil)
			Expect(resp.status).To(Equal(http.StatusOK))
			Expect(resp.body).To(BeEmpty())
			Expect(sessionCount()).To(Equal(before))

			resp = b.do(http.MethodGet, web.PathProfile, nil)
			Expect(resp.status).To(Equal(http.StatusFound))
			Expect(resp.location).To(Equal(web.PathError))
		})

		It("rejects a wrong password without creating a session", func() {
			before := sessionCount()

			resp := b.do(http.MethodPost, web.PathLogin, loginBody(email, "difference-engine"))
			Expect(resp.status).To(Equal(http.StatusFound))
			Expect(resp.location).To(Equal(web.PathError))
			Expect(sessionCount()).To(Equal(before))

			resp = b.do(http.MethodGet, resp.location, nil)
			Expect(resp.status).To(Equal(http.StatusUnauthorized))
			Expect(resp.json()).To(HaveKeyWithValue("msg", "unauthorized"))
		})

		It("rejects an unknown email the same way", func() {
			resp := b.do(http.MethodPost, web.PathLogin, loginBody("nobody."+uniqueSuffix()+"@example.com", "analytical-engine-1843"))
			Expect(resp.status).To(Equal(http.StatusFound))
			Expect(resp.location).To(Equal(web.PathError))
		})

		It("keeps sessions of separate clients apart", func() {
			other := newBrowser()
			Expect(b.do(http.MethodPost, web.PathLogin, loginBody(email, "analytical-engine-1843")).status).
				To(Equal(http.StatusOK))

			Expect(other.do(http.MethodGet, web.PathProfile, nil).status).To(Equal(http.StatusFound))
			Expect(b.do(http.MethodGet, web.PathProfile, nil).status).To(Equal(http.StatusOK))
		})

		It("ends the session when the principal is deleted", func() {
			Expect(b.do(http.MethodPost, web.PathLogin, loginBody(email, "analytical-engine-1843")).status).
				To(Equal(http.StatusOK))

			_, err := suite.pool.Exec(suite.ctx, `DELETE FROM principals WHERE LOWER(email) = LOWER($1)`, email)
			Expect(err).NotTo(HaveOccurred())

			resp := b.do(http.MethodGet, web.PathProfile, nil)
			Expect(resp.status).To(Equal(http.StatusFound))
		})
	})

	Describe("expired sessions", func() {
		It("are treated as anonymous and pruned", func() {
			Expect(b.do(http.MethodPost, web.PathSignup, signupBody(username, email)).status).
				To(Equal(http.StatusOK))
			Expect(b.do(http.MethodPost, web.PathLogin, loginBody(email, "analytical-engine-1843")).status).
				To(Equal(http.StatusOK))

			_, err := suite.pool.Exec(suite.ctx, `
				UPDATE web_sessions SET expires_at = NOW() - INTERVAL '1 minute'
				WHERE principal_id = (SELECT id FROM principals WHERE LOWER(email) = LOWER($1))`, email)
			Expect(err).NotTo(HaveOccurred())

			Expect(b.do(http.MethodGet, web.PathProfile, nil).status).To(Equal(http.StatusFound))

			deleted, err := suite.sessions.DeleteExpired(suite.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeNumerically(">=", 1))

			var remaining int
			Expect(suite.pool.QueryRow(suite.ctx,
				`SELECT COUNT(*) FROM web_sessions WHERE expires_at < NOW()`).Scan(&remaining)).To(Succeed())
			Expect(remaining).To(BeZero())
		})
	})
})
