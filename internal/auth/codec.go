// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token is the durable session value: a principal identifier and nothing else.
type Token string

// SessionCodec converts principals to session tokens and back.
type SessionCodec struct {
	identities IdentityLookup
	logger     *slog.Logger
}

// NewSessionCodec creates a SessionCodec with a no-op logger.
func NewSessionCodec(identities IdentityLookup) (*SessionCodec, error) {
	return NewSessionCodecWithLogger(identities, slog.New(slog.DiscardHandler))
}

// NewSessionCodecWithLogger creates a SessionCodec with the provided logger.
func NewSessionCodecWithLogger(identities IdentityLookup, logger *slog.Logger) (*SessionCodec, error) {
	if identities == nil {
		return nil, oops.Errorf("identity lookup is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &SessionCodec{identities: identities, logger: logger}, nil
}

// Serialize extracts the principal's identifier.
func (c *SessionCodec) Serialize(p *Principal) Token {
	if p == nil {
		return ""
	}
	return Token(p.ID.String())
}

// Deserialize reconstructs the principal named by token. An empty or
// malformed token, or one whose principal no longer exists, yields
// (nil, nil): the request is anonymous. An error is returned only when the
// identity store could not be consulted.
func (c *SessionCodec) Deserialize(ctx context.Context, token Token) (*Principal, error) {
	if token == "" {
		SessionResolutions.WithLabelValues(ResolutionAnonymous).Inc()
		return nil, nil
	}

	id, err := ulid.Parse(string(token))
	if err != nil {
		SessionResolutions.WithLabelValues(ResolutionStale).Inc()
		c.logger.WarnContext(ctx, "malformed session token")
		return nil, nil
	}

	p, err := c.identities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			SessionResolutions.WithLabelValues(ResolutionStale).Inc()
			c.logger.InfoContext(ctx, "session names a missing principal", "principal_id", id.String())
			return nil, nil
		}
		SessionResolutions.WithLabelValues(ResolutionError).Inc()
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("principal_id", id.String()).
			Wrap(err)
	}

	SessionResolutions.WithLabelValues(ResolutionAuthenticated).Inc()
	return p, nil
}
