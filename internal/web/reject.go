// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"
)

// Rejector answers a request that failed a guard or a login.
type Rejector interface {
	Reject(w http.ResponseWriter, r *http.Request)
}

// RedirectRejector sends the client to Location with 302 Found.
type RedirectRejector struct {
	Location string
}

// Reject implements Rejector.
func (rr RedirectRejector) Reject(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, rr.Location, http.StatusFound)
}

// StatusRejector answers 401 with the unauthorized body.
type StatusRejector struct{}

// Reject implements Rejector.
func (StatusRejector) Reject(w http.ResponseWriter, _ *http.Request) {
	writeUnauthorized(w)
}
