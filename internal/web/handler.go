// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/pkg/errutil"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// Response messages.
const (
	MsgUserCreated  = "user created"
	MsgSignupFailed = "error creating user"
	MsgUnauthorized = "unauthorized"
	MsgUnavailable  = "service unavailable"
	MsgInternal     = "internal error"
)

// MessageResponse is the {"msg": ...} body used by most routes.
type MessageResponse struct {
	Msg string `json:"msg"`
}

// SignupErrorResponse lists every violated signup constraint.
type SignupErrorResponse struct {
	Msg    string                `json:"msg"`
	Errors []auth.FieldViolation `json:"errors"`
}

// Registrar creates principals.
type Registrar interface {
	Create(ctx context.Context, fields auth.SignupFields) (*auth.Principal, error)
}

// Verifier checks credential submissions.
type Verifier interface {
	Verify(ctx context.Context, sub auth.Submission) (auth.Verdict, error)
}

// AuthHandler serves the signup, login, logout, profile, and error routes.
type AuthHandler struct {
	identities Registrar
	verifier   Verifier
	gate       *Gate
	logger     *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(identities Registrar, verifier Verifier, gate *Gate, logger *slog.Logger) (*AuthHandler, error) {
	if identities == nil {
		return nil, oops.Code("HANDLER_INIT_FAILED").Errorf("registrar is required")
	}
	if verifier == nil {
		return nil, oops.Code("HANDLER_INIT_FAILED").Errorf("verifier is required")
	}
	if gate == nil {
		return nil, oops.Code("HANDLER_INIT_FAILED").Errorf("gate is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuthHandler{identities: identities, verifier: verifier, gate: gate, logger: logger}, nil
}

// Signup creates a principal from the request body.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SignupRequest
	violations, err := decodeBody(w, r, SchemaSignup, &req)
	if err != nil {
		h.logger.DebugContext(ctx, "signup body rejected", errutil.Attrs(err)...)
		violations = []auth.FieldViolation{{Field: "body", Message: "is not a valid request"}}
	}
	if len(violations) > 0 {
		h.writeJSON(ctx, w, http.StatusBadRequest, SignupErrorResponse{Msg: MsgSignupFailed, Errors: violations})
		return
	}

	if _, err := h.identities.Create(ctx, req.Fields()); err != nil {
		if verr, ok := auth.AsValidationError(err); ok {
			h.writeJSON(ctx, w, http.StatusBadRequest, SignupErrorResponse{Msg: MsgSignupFailed, Errors: verr.Violations})
			return
		}
		errutil.LogErrorContext(ctx, h.logger, "signup failed", err)
		h.writeJSON(ctx, w, http.StatusServiceUnavailable, MessageResponse{Msg: MsgUnavailable})
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, MessageResponse{Msg: MsgUserCreated})
}

// Login verifies the submitted credentials and authenticates the session.
// Every failure, whatever its cause, gets the same rejection.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	violations, err := decodeBody(w, r, SchemaLogin, &req)
	if err != nil || len(violations) > 0 {
		h.logger.DebugContext(ctx, "login body rejected", "violations", len(violations))
		h.gate.Reject(w, r)
		return
	}

	verdict, err := h.verifier.Verify(ctx, req.Submission())
	if err != nil {
		errutil.LogErrorContext(ctx, h.logger, "login verification failed", err)
		h.writeJSON(ctx, w, http.StatusServiceUnavailable, MessageResponse{Msg: MsgUnavailable})
		return
	}
	if !verdict.OK() {
		h.gate.Reject(w, r)
		return
	}

	if err := h.gate.Login(w, r, verdict.Principal); err != nil {
		if ctx.Err() != nil {
			h.logger.InfoContext(ctx, "login abandoned by client", "principal_id", verdict.Principal.ID.String())
			return
		}
		errutil.LogErrorContext(ctx, h.logger, "session login failed", err)
		h.writeJSON(ctx, w, http.StatusInternalServerError, MessageResponse{Msg: MsgInternal})
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, verdict.Principal.Profile())
}

// Logout clears the session. It succeeds for Anonymous requests too.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Logout(w, r); err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "logout failed", err)
		h.writeJSON(r.Context(), w, http.StatusInternalServerError, MessageResponse{Msg: MsgInternal})
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Profile describes the authenticated principal.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFrom(r.Context())
	if principal == nil {
		h.gate.Reject(w, r)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusOK, MessageResponse{
		Msg: fmt.Sprintf("logged in as %s <%s>", principal.DisplayName(), principal.Email),
	})
}

// Error is the landing route of redirected rejections.
func (h *AuthHandler) Error(w http.ResponseWriter, _ *http.Request) {
	writeUnauthorized(w)
}

func (h *AuthHandler) writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	if err := writeJSON(w, statusCode, v); err != nil {
		h.logger.WarnContext(ctx, "failed to write response", "status", statusCode, "error", err)
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	//nolint:errcheck // client may disconnect
	writeJSON(w, http.StatusUnauthorized, MessageResponse{Msg: MsgUnauthorized})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return oops.Code("RESPONSE_WRITE_FAILED").Wrap(err)
	}
	return nil
}

// decodeBody reads a JSON or form-encoded body into dst after checking it
// against the named schema. Schema violations are returned, not raised;
// an error means the body could not be read or parsed at all.
func decodeBody(w http.ResponseWriter, r *http.Request, schema string, dst any) ([]auth.FieldViolation, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var data []byte
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, oops.Code("REQUEST_MALFORMED").With("content_type", mediaType).Wrap(err)
		}
		form := make(map[string]string, len(r.PostForm))
		for key, values := range r.PostForm {
			if len(values) > 0 {
				form[key] = values[0]
			}
		}
		encoded, err := json.Marshal(form)
		if err != nil {
			return nil, oops.Code("REQUEST_MALFORMED").Wrap(err)
		}
		data = encoded
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, oops.Code("REQUEST_MALFORMED").With("content_type", mediaType).Wrap(err)
		}
		data = body
	}

	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("REQUEST_MALFORMED").Wrap(err)
	}
	violations, err := validateDocument(schema, doc)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return violations, nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return nil, oops.Code("REQUEST_MALFORMED").Wrap(err)
	}
	return nil, nil
}
