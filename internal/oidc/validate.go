// Package oidc implements the authorization protocol engine: request
// validation, the login dance, code issuance and redemption, and ID token
// construction.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"oidcd/internal/oidc/models"
	"oidcd/internal/store"
	dErrors "oidcd/pkg/domain-errors"
	"oidcd/pkg/platform/sentinel"
)

// Validate checks an authorization request against the protocol rules and the
// client registration, mutating it into its normalized form: trimmed fields,
// defaulted display, and a fresh server correlation value in State. The
// client's own state moves to ClientState so it can be echoed later.
//
// The checks run in a fixed order; the client lookup comes last among the
// request-shape checks because it is the only one that costs a store round
// trip. Store failures surface as internal errors, never as client errors.
func Validate(ctx context.Context, req *models.AuthenticationRequest, clients store.Store) error {
	if req.Scope != models.ScopeOpenID {
		return dErrors.New(dErrors.CodeBadRequest, "only scope openid is supported")
	}

	switch strings.TrimSpace(req.ResponseType) {
	case models.ResponseTypeIDToken:
		if req.Nonce == "" {
			return dErrors.New(dErrors.CodeBadRequest, "nonce field required")
		}
	case models.ResponseTypeCode:
	default:
		return dErrors.New(dErrors.CodeBadRequest, "invalid response type")
	}

	redirectURI := strings.TrimSpace(req.RedirectURI)
	parsed, err := url.Parse(redirectURI)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return dErrors.New(dErrors.CodeBadRequest, "invalid redirect url")
	}

	// Plain HTTP callbacks are only tolerated for local development.
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return dErrors.New(dErrors.CodeBadRequest, "invalid redirect url")
		}
	}

	client, err := clients.GetClient(ctx, strings.TrimSpace(req.ClientID))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeBadRequest, "invalid client id")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "client lookup failed")
	}

	registered := false
	for _, item := range client.RedirectURLs {
		if item == redirectURI {
			registered = true
			break
		}
	}
	if !registered {
		return dErrors.New(dErrors.CodeBadRequest, "invalid redirect uri")
	}

	if req.Display == "" {
		req.Display = models.DefaultDisplay
	}

	state, err := NewCorrelationToken()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not generate state")
	}

	req.ResponseType = strings.TrimSpace(req.ResponseType)
	req.RedirectURI = redirectURI
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ClientState = req.State
	req.State = state

	return nil
}

// NewCorrelationToken returns 128 bits of hex-encoded randomness, used for
// correlation states, session IDs, and authorization codes.
func NewCorrelationToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
