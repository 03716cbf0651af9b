// Package service orchestrates the two-step login flow: authorize validates
// and parks the request, login verifies credentials and delivers the token,
// exchange redeems an authorization code. Transport concerns stay in the
// handler layer.
package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"time"

	"oidcd/internal/oidc"
	"oidcd/internal/oidc/correlation"
	"oidcd/internal/oidc/models"
	"oidcd/internal/oidc/token"
	"oidcd/internal/store"
	dErrors "oidcd/pkg/domain-errors"
	"oidcd/pkg/platform/sentinel"
)

// GrantAuthorizationCode is the only grant type the token endpoint accepts.
const GrantAuthorizationCode = "authorization_code"

// Config carries the issuance parameters fixed at startup.
type Config struct {
	// Issuer is the fixed `iss` claim; empty means "use the request host".
	Issuer string
	// Salt is appended to passwords before digesting.
	Salt string
	// TokenValidity bounds the `exp` claim.
	TokenValidity time.Duration
	// TokenDuration is the advertised expires_in of the implicit response.
	TokenDuration time.Duration
}

// Service implements the protocol engine over its collaborators.
type Service struct {
	store   store.Store
	tracker correlation.Tracker
	signKey *ecdsa.PrivateKey
	cfg     Config
	clock   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(st store.Store, tracker correlation.Tracker, signKey *ecdsa.PrivateKey, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:   st,
		tracker: tracker,
		signKey: signKey,
		cfg:     cfg,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// AuthorizeResult is the parked state of a validated authorization request.
type AuthorizeResult struct {
	Request   *models.AuthenticationRequest
	SessionID string
}

// Authorize validates the request and begins a correlation session. The
// returned request is normalized and carries the server state the login form
// must echo.
func (s *Service) Authorize(ctx context.Context, req *models.AuthenticationRequest) (*AuthorizeResult, error) {
	if err := oidc.Validate(ctx, req, s.store); err != nil {
		return nil, err
	}
	sessionID, err := s.tracker.BeginSession(ctx, req.State)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not begin session")
	}
	return &AuthorizeResult{Request: req, SessionID: sessionID}, nil
}

// LoginResult carries the redirect the browser is sent to after a successful
// login.
type LoginResult struct {
	Location string
}

// Login verifies the submitted credentials against the pending request and
// mints the token for the requested flow.
//
// The state comparison runs before any credential work: it is the integrity
// check tying the form post back to the original authorize redirect.
func (s *Service) Login(
	ctx context.Context,
	submission models.LoginSubmission,
	pending *models.AuthenticationRequest,
	sessionID string,
	host string,
) (*LoginResult, error) {

	sessionState, err := s.tracker.LookupSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown or expired session")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "session lookup failed")
	}
	if submission.State != pending.State || sessionState != pending.State {
		return nil, dErrors.New(dErrors.CodeBadRequest, "wrong state")
	}

	user, err := s.store.GetUser(ctx, submission.Email, s.DigestPassword(submission.Password))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "user lookup failed")
	}

	issuer := s.cfg.Issuer
	if issuer == "" {
		issuer = host
	}

	claims := token.Build(issuer, user.Email, []string{pending.ClientID}, s.cfg.TokenValidity, pending.Nonce, s.clock())

	if pending.ResponseType == models.ResponseTypeCode {
		return s.finishCodeFlow(ctx, pending, claims)
	}
	return s.finishImplicitFlow(pending, claims)
}

func (s *Service) finishCodeFlow(ctx context.Context, pending *models.AuthenticationRequest, claims *token.Claims) (*LoginResult, error) {
	code, err := s.tracker.IssueCode(ctx, claims)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not issue code")
	}
	params := url.Values{}
	params.Set("code", code)
	params.Set("state", echoState(pending))
	return &LoginResult{Location: pending.RedirectURI + "?" + params.Encode()}, nil
}

func (s *Service) finishImplicitFlow(pending *models.AuthenticationRequest, claims *token.Claims) (*LoginResult, error) {
	jwt, err := token.Sign(claims, s.signKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not sign token")
	}
	params := url.Values{}
	params.Set("token_type", "bearer")
	params.Set("id_token", jwt)
	params.Set("expires_in", formatSeconds(s.cfg.TokenDuration))
	params.Set("state", echoState(pending))
	return &LoginResult{Location: pending.RedirectURI + "?" + params.Encode()}, nil
}

// echoState prefers the client's own state, falling back to the correlation
// value for clients that sent none.
func echoState(pending *models.AuthenticationRequest) string {
	if pending.ClientState != "" {
		return pending.ClientState
	}
	return pending.State
}

// ExchangeResult is the token endpoint response body.
type ExchangeResult struct {
	IDToken   string `json:"id_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

// Exchange redeems an authorization code, signing the parked claims at
// redemption time. Codes are single use; a replay reports invalid_grant like
// an unknown code.
func (s *Service) Exchange(ctx context.Context, grantType, code string) (*ExchangeResult, error) {
	if grantType != GrantAuthorizationCode {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unsupported grant_type")
	}
	if code == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "code is required")
	}

	claims, err := s.tracker.RedeemCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid or expired authorization code")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "code redemption failed")
	}

	jwt, err := token.Sign(claims, s.signKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not sign token")
	}

	expiresIn := int64(claims.ExpiresAt.Sub(s.clock()).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return &ExchangeResult{
		IDToken:   jwt,
		TokenType: "bearer",
		ExpiresIn: expiresIn,
	}, nil
}

// DigestPassword computes base64(sha256(password + salt)), the digest format
// the credential store matches against.
func DigestPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (s *Service) DigestPassword(password string) string {
	return DigestPassword(password, s.cfg.Salt)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(d.Seconds()), 10)
}
