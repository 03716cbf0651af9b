package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"oidcd/internal/oidc/correlation"
	"oidcd/internal/oidc/models"
	"oidcd/internal/oidc/token"
	"oidcd/internal/store"
	"oidcd/internal/store/memory"
	"oidcd/internal/store/mocks"
	dErrors "oidcd/pkg/domain-errors"
)

const testSalt = "wurstbrot"

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func newTestService(t *testing.T, st store.Store) (*Service, *correlation.InMemoryTracker, *ecdsa.PrivateKey) {
	t.Helper()
	tracker := correlation.NewInMemory()
	key := testKey(t)
	svc := New(st, tracker, key, Config{
		Issuer:        "https://idp.example.com",
		Salt:          testSalt,
		TokenValidity: 20 * time.Minute,
		TokenDuration: 7 * 24 * time.Hour,
	})
	return svc, tracker, key
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	st := memory.New()
	st.SeedClient(store.Client{
		ID:           "foobar",
		Name:         "foobar",
		RedirectURLs: []string{"https://example.com/cb"},
	})
	st.SeedUser(store.User{ID: "123", Email: "user@example.com"}, DigestPassword("secret", testSalt))
	return st
}

// newLoginFixture runs Authorize so Login tests start from a parked request.
func newLoginFixture(t *testing.T, responseType string) (*Service, *AuthorizeResult) {
	t.Helper()
	svc, _, _ := newTestService(t, seededStore(t))

	req := &models.AuthenticationRequest{
		ResponseType: responseType,
		Nonce:        "nonce-abc",
		RedirectURI:  "https://example.com/cb",
		ClientID:     "foobar",
		Scope:        "openid",
		State:        "client-state",
	}
	res, err := svc.Authorize(context.Background(), req)
	require.NoError(t, err)
	return svc, res
}

func TestAuthorize(t *testing.T) {
	svc, tracker, _ := newTestService(t, seededStore(t))

	t.Run("valid request parks a session", func(t *testing.T) {
		req := &models.AuthenticationRequest{
			ResponseType: "code",
			RedirectURI:  "https://example.com/cb",
			ClientID:     "foobar",
			Scope:        "openid",
		}
		res, err := svc.Authorize(context.Background(), req)
		require.NoError(t, err)
		assert.NotEmpty(t, res.SessionID)

		state, err := tracker.LookupSession(context.Background(), res.SessionID)
		require.NoError(t, err)
		assert.Equal(t, req.State, state)
	})

	t.Run("invalid request does not park a session", func(t *testing.T) {
		req := &models.AuthenticationRequest{
			ResponseType: "code",
			RedirectURI:  "https://example.com/wrong_cb",
			ClientID:     "foobar",
			Scope:        "openid",
		}
		_, err := svc.Authorize(context.Background(), req)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func TestLoginStateCheckPrecedesCredentialCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	// GetUser must never be called when the state is wrong.
	st.EXPECT().GetClient(gomock.Any(), "foobar").Return(&store.Client{
		ID:           "foobar",
		Name:         "foobar",
		RedirectURLs: []string{"https://example.com/cb"},
	}, nil)

	svc, _, _ := newTestService(t, st)

	req := &models.AuthenticationRequest{
		ResponseType: "code",
		RedirectURI:  "https://example.com/cb",
		ClientID:     "foobar",
		Scope:        "openid",
	}
	res, err := svc.Authorize(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Login(context.Background(),
		models.LoginSubmission{Email: "user@example.com", Password: "secret", State: "tampered"},
		res.Request, res.SessionID, "idp.local")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
	assert.Contains(t, err.Error(), "state")
}

func TestLoginCodeFlow(t *testing.T) {
	svc, res := newLoginFixture(t, "code")

	result, err := svc.Login(context.Background(),
		models.LoginSubmission{Email: "user@example.com", Password: "secret", State: res.Request.State},
		res.Request, res.SessionID, "idp.local")
	require.NoError(t, err)

	loc, err := url.Parse(result.Location)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Location, "https://example.com/cb?"))
	assert.NotEmpty(t, loc.Query().Get("code"))
	assert.Equal(t, "client-state", loc.Query().Get("state"), "client state is echoed")
	assert.Empty(t, loc.Query().Get("id_token"), "code flow carries no token")
}

func TestLoginImplicitFlow(t *testing.T) {
	svc, res := newLoginFixture(t, "id_token")

	result, err := svc.Login(context.Background(),
		models.LoginSubmission{Email: "user@example.com", Password: "secret", State: res.Request.State},
		res.Request, res.SessionID, "idp.local")
	require.NoError(t, err)

	loc, err := url.Parse(result.Location)
	require.NoError(t, err)
	query := loc.Query()
	assert.Equal(t, "bearer", query.Get("token_type"))
	assert.Equal(t, "604800", query.Get("expires_in"))
	assert.Equal(t, "client-state", query.Get("state"))

	claims, err := token.Parse(query.Get("id_token"), &svc.signKey.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com", claims.Issuer)
	assert.Equal(t, "user@example.com", claims.Subject)
	assert.Equal(t, []string{"foobar"}, []string(claims.Audience))
	assert.Equal(t, "nonce-abc", claims.Nonce)
}

func TestLoginWrongCredentials(t *testing.T) {
	svc, res := newLoginFixture(t, "code")

	_, err := svc.Login(context.Background(),
		models.LoginSubmission{Email: "user@example.com", Password: "wrong", State: res.Request.State},
		res.Request, res.SessionID, "idp.local")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestLoginStoreFailureIsInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().GetClient(gomock.Any(), gomock.Any()).Return(&store.Client{
		ID:           "foobar",
		Name:         "foobar",
		RedirectURLs: []string{"https://example.com/cb"},
	}, nil)
	st.EXPECT().GetUser(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection refused"))

	svc, _, _ := newTestService(t, st)
	req := &models.AuthenticationRequest{
		ResponseType: "code",
		RedirectURI:  "https://example.com/cb",
		ClientID:     "foobar",
		Scope:        "openid",
	}
	res, err := svc.Authorize(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Login(context.Background(),
		models.LoginSubmission{Email: "user@example.com", Password: "secret", State: res.Request.State},
		res.Request, res.SessionID, "idp.local")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInternal))
}

func TestLoginIssuerFallsBackToHost(t *testing.T) {
	key := testKey(t)
	svc := New(seededStore(t), correlation.NewInMemory(), key, Config{
		Salt:          testSalt,
		TokenValidity: 20 * time.Minute,
		TokenDuration: time.Hour,
	})

	req := &models.AuthenticationRequest{
		ResponseType: "id_token",
		Nonce:        "n",
		RedirectURI:  "https://example.com/cb",
		ClientID:     "foobar",
		Scope:        "openid",
	}
	res, err := svc.Authorize(context.Background(), req)
	require.NoError(t, err)

	result, err := svc.Login(context.Background(),
		models.LoginSubmission{Email: "user@example.com", Password: "secret", State: res.Request.State},
		res.Request, res.SessionID, "login.example.net")
	require.NoError(t, err)

	loc, _ := url.Parse(result.Location)
	claims, err := token.Parse(loc.Query().Get("id_token"), &key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "login.example.net", claims.Issuer)
}

func TestExchange(t *testing.T) {
	svc, res := newLoginFixture(t, "code")

	result, err := svc.Login(context.Background(),
		models.LoginSubmission{Email: "user@example.com", Password: "secret", State: res.Request.State},
		res.Request, res.SessionID, "idp.local")
	require.NoError(t, err)
	loc, _ := url.Parse(result.Location)
	code := loc.Query().Get("code")

	t.Run("redeems the code for a signed token", func(t *testing.T) {
		exchanged, err := svc.Exchange(context.Background(), GrantAuthorizationCode, code)
		require.NoError(t, err)
		assert.Equal(t, "bearer", exchanged.TokenType)
		assert.Greater(t, exchanged.ExpiresIn, int64(0))

		claims, err := token.Parse(exchanged.IDToken, &svc.signKey.PublicKey)
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", claims.Subject)
	})

	t.Run("replay is rejected", func(t *testing.T) {
		_, err := svc.Exchange(context.Background(), GrantAuthorizationCode, code)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
	})

	t.Run("unknown grant type is rejected", func(t *testing.T) {
		_, err := svc.Exchange(context.Background(), "client_credentials", code)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
	})

	t.Run("unknown code is rejected", func(t *testing.T) {
		_, err := svc.Exchange(context.Background(), GrantAuthorizationCode, "bogus")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func TestDigestPassword(t *testing.T) {
	svc, _, _ := newTestService(t, memory.New())
	digest := svc.DigestPassword("secret")
	assert.NotEmpty(t, digest)
	assert.NotEqual(t, "secret", digest)
	assert.Equal(t, digest, svc.DigestPassword("secret"), "digest is deterministic")
}
