package handler

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"oidcd/internal/oidc/models"
)

const (
	pendingCookieName = "oidcd_request"
	sessionCookieName = "oidcd_session"

	cookieTTL = 10 * time.Minute
)

type pendingClaims struct {
	Request *models.AuthenticationRequest `json:"req"`
	jwt.RegisteredClaims
}

// CookieCodec signs the pending authorization request into a cookie so the
// login POST can recover it without server-side request storage. The HMAC key
// is generated per process; a restart invalidates in-flight logins, which is
// acceptable for a ten-minute window.
type CookieCodec struct {
	key []byte
}

func NewCookieCodec() (*CookieCodec, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate cookie key: %w", err)
	}
	return &CookieCodec{key: key}, nil
}

// EncodeRequest signs req into a compact HS256 token.
func (c *CookieCodec) EncodeRequest(req *models.AuthenticationRequest, now time.Time) (string, error) {
	claims := pendingClaims{
		Request: req,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cookieTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign request cookie: %w", err)
	}
	return signed, nil
}

// DecodeRequest verifies the cookie value and returns the parked request.
func (c *CookieCodec) DecodeRequest(value string) (*models.AuthenticationRequest, error) {
	var claims pendingClaims
	_, err := jwt.ParseWithClaims(value, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse request cookie: %w", err)
	}
	if claims.Request == nil {
		return nil, fmt.Errorf("request cookie carries no request")
	}
	return claims.Request, nil
}

func setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(cookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
