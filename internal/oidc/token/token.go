// Package token builds and signs ID tokens. Construction and signing are
// separate steps: the code flow stores an unsigned claim set and signs it at
// redemption time, the implicit flow signs immediately.
package token

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AMRPassword marks a password-based authentication.
const AMRPassword = "password"

// Claims is the ID token claim set.
type Claims struct {
	Nonce       string   `json:"nonce,omitempty"`
	AuthMethods []string `json:"amr,omitempty"`
	jwt.RegisteredClaims
}

// Build assembles the canonical claim set for an authenticated user.
func Build(issuer, subject string, audience []string, validity time.Duration, nonce string, now time.Time) *Claims {
	return &Claims{
		Nonce:       nonce,
		AuthMethods: []string{AMRPassword},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
}

// Sign produces the compact ES256 serialization of the claims.
func Sign(claims *Claims, key *ecdsa.PrivateKey) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign id token: %w", err)
	}
	return signed, nil
}

// Parse verifies a compact token against the public half of the signing key
// and returns its claims. Used by tests and by anything consuming our own
// tokens.
func Parse(tokenString string, key *ecdsa.PublicKey) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid id token claims")
	}
	return claims, nil
}
