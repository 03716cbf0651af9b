// Package handler is the thin HTTP layer over the protocol engine: it parses
// query and form input, shuttles the pending request through cookies, and
// translates service errors into the JSON envelope. Business rules live in the
// service.
package handler

import (
	"context"
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"oidcd/internal/oidc/models"
	"oidcd/internal/oidc/service"
	"oidcd/internal/platform/metrics"
	"oidcd/internal/platform/middleware"
	dErrors "oidcd/pkg/domain-errors"
	"oidcd/pkg/platform/httputil"
)

//go:embed form.html
var formHTML string

var formTemplate = template.Must(template.New("form").Parse(formHTML))

// Service defines the protocol operations the handler delegates to.
type Service interface {
	Authorize(ctx context.Context, req *models.AuthenticationRequest) (*service.AuthorizeResult, error)
	Login(ctx context.Context, submission models.LoginSubmission, pending *models.AuthenticationRequest, sessionID, host string) (*service.LoginResult, error)
	Exchange(ctx context.Context, grantType, code string) (*service.ExchangeResult, error)
}

// Handler wires the provider endpoints to the protocol service.
type Handler struct {
	service      Service
	cookies      *CookieCodec
	logger       *slog.Logger
	metrics      *metrics.Metrics
	publicKeyPEM string
	clock        func() time.Time
}

// New constructs a handler with its dependencies.
func New(svc Service, cookies *CookieCodec, logger *slog.Logger, m *metrics.Metrics, publicKeyPEM string) *Handler {
	return &Handler{
		service:      svc,
		cookies:      cookies,
		logger:       logger,
		metrics:      m,
		publicKeyPEM: publicKeyPEM,
		clock:        time.Now,
	}
}

// Register mounts the provider endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/authorize", h.HandleAuthorize)
	r.Post("/login", h.HandleLogin)
	r.Post("/token", h.HandleToken)
	r.Get("/public-key", h.HandlePublicKey)
	r.Get("/healthz", h.HandleHealth)
}

// HandleAuthorize handles GET /authorize: validate, park the request in
// cookies, render the login form.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req := parseAuthorizeRequest(r)
	res, err := h.service.Authorize(ctx, req)
	if err != nil {
		h.metrics.IncAuthorize(outcomeOf(err))
		h.logger.WarnContext(ctx, "authorization request rejected",
			"request_id", requestID,
			"client_id", req.ClientID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	cookie, err := h.cookies.EncodeRequest(res.Request, h.clock())
	if err != nil {
		h.metrics.IncAuthorize("internal_error")
		h.logger.ErrorContext(ctx, "could not encode request cookie",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not park request"))
		return
	}
	setCookie(w, pendingCookieName, cookie)
	setCookie(w, sessionCookieName, res.SessionID)

	h.metrics.IncAuthorize("ok")
	h.logger.InfoContext(ctx, "authorization request accepted",
		"request_id", requestID,
		"client_id", res.Request.ClientID,
		"response_type", res.Request.ResponseType,
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := formTemplate.Execute(w, res.Request); err != nil {
		h.logger.ErrorContext(ctx, "could not render login form",
			"request_id", requestID,
			"error", err,
		)
	}
}

// HandleLogin handles POST /login: recover the parked request from cookies,
// verify credentials, redirect with code or token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	if err := r.ParseForm(); err != nil {
		h.metrics.IncLogin("rejected")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return
	}

	pendingCookie, err := r.Cookie(pendingCookieName)
	if err != nil {
		h.metrics.IncLogin("rejected")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing login session"))
		return
	}
	pending, err := h.cookies.DecodeRequest(pendingCookie.Value)
	if err != nil {
		h.metrics.IncLogin("rejected")
		h.logger.WarnContext(ctx, "rejected malformed request cookie",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid login session"))
		return
	}
	sessionCookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		h.metrics.IncLogin("rejected")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing login session"))
		return
	}

	submission := models.LoginSubmission{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		State:    r.PostFormValue("state"),
	}

	result, err := h.service.Login(ctx, submission, pending, sessionCookie.Value, r.Host)
	if err != nil {
		h.metrics.IncLogin(loginOutcomeOf(err))
		h.logger.WarnContext(ctx, "login failed",
			"request_id", requestID,
			"client_id", pending.ClientID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.metrics.IncLogin("success")
	h.metrics.IncTokenIssued(flowOf(pending.ResponseType))
	h.logger.InfoContext(ctx, "login succeeded",
		"request_id", requestID,
		"client_id", pending.ClientID,
		"response_type", pending.ResponseType,
	)

	clearCookie(w, pendingCookieName)
	clearCookie(w, sessionCookieName)
	http.Redirect(w, r, result.Location, http.StatusFound)
}

// HandleToken handles POST /token: redeem an authorization code for the
// signed ID token.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	if err := r.ParseForm(); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return
	}

	result, err := h.service.Exchange(ctx, r.PostFormValue("grant_type"), r.PostFormValue("code"))
	if err != nil {
		h.logger.WarnContext(ctx, "code exchange failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.metrics.IncTokenIssued("exchange")
	h.logger.InfoContext(ctx, "code exchanged", "request_id", requestID)

	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandlePublicKey serves the PEM-encoded verification key.
func (h *Handler) HandlePublicKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(h.publicKeyPEM))
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseAuthorizeRequest(r *http.Request) *models.AuthenticationRequest {
	q := r.URL.Query()
	return &models.AuthenticationRequest{
		ResponseType: q.Get("response_type"),
		Nonce:        q.Get("nonce"),
		RedirectURI:  q.Get("redirect_uri"),
		ClientID:     q.Get("client_id"),
		Scope:        q.Get("scope"),
		State:        q.Get("state"),
		Display:      q.Get("display"),
		Prompt:       q.Get("prompt"),
		MaxAge:       q.Get("max_age"),
		UILocales:    q.Get("ui_locales"),
		IDTokenHint:  q.Get("id_token_hint"),
		LoginHint:    q.Get("login_hint"),
		ACRValues:    q.Get("acr_values"),
	}
}

func outcomeOf(err error) string {
	switch {
	case dErrors.HasCode(err, dErrors.CodeInternal):
		return "internal_error"
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return "not_found"
	default:
		return "client_error"
	}
}

func loginOutcomeOf(err error) string {
	switch {
	case dErrors.HasCode(err, dErrors.CodeInternal):
		return "internal_error"
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return "not_found"
	default:
		return "rejected"
	}
}

func flowOf(responseType string) string {
	if responseType == models.ResponseTypeCode {
		return "code"
	}
	return "implicit"
}
