// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the session authentication core.
//
// # Components
//
//   - PasswordHasher - salted, work-factor hashing (argon2id or bcrypt)
//   - IdentityStore - principal lookups and signup over a PrincipalRepository
//   - Authenticator - turns a Submission into a Verdict
//   - SessionCodec - principal to session Token and back
//
// Constructors validate their dependencies and return an error when one is
// missing. Store failures surface as AUTH_STORE_UNAVAILABLE; a missing
// principal is ErrNotFound and is never exceptional.
//
// # Sessions
//
// WebSession and WebSessionRepository back the server-side session context.
// The cookie carries a random token; only its SHA256 hash is stored.
package auth
