// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// instrumentationName identifies this package to OpenTelemetry.
const instrumentationName = "github.com/holomush/sessionauth/internal/auth"

var tracer = otel.Tracer(instrumentationName)

// Login outcome labels.
const (
	OutcomeSuccess         = "success"
	OutcomeUnknownIdentity = "unknown_identity"
	OutcomeSecretMismatch  = "secret_mismatch"
	OutcomeError           = "error"
)

// Signup outcome labels.
const (
	SignupCreated  = "created"
	SignupRejected = "rejected"
	SignupError    = "error"
)

// Session resolution labels.
const (
	ResolutionAuthenticated = "authenticated"
	ResolutionAnonymous     = "anonymous"
	ResolutionStale         = "stale"
	ResolutionError         = "error"
)

// LoginAttempts counts verification attempts by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessionauth_login_attempts_total",
		Help: "Total number of credential verifications by outcome",
	},
	[]string{"outcome"},
)

// Signups counts signup attempts by outcome.
var Signups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessionauth_signups_total",
		Help: "Total number of signup attempts by outcome",
	},
	[]string{"outcome"},
)

// SessionResolutions counts session token deserializations by result.
var SessionResolutions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessionauth_session_resolutions_total",
		Help: "Total number of session identity resolutions by result",
	},
	[]string{"result"},
)

// VerifyDuration observes how long credential verification takes,
// including the dummy comparison for unknown identities.
var VerifyDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "sessionauth_verify_duration_seconds",
		Help:    "Credential verification duration in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(Signups)
	reg.MustRegister(SessionResolutions)
	reg.MustRegister(VerifyDuration)
}
