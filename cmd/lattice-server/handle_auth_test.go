package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"github.com/lattice-auth/lattice"
	"github.com/lattice-auth/lattice/internal/store"
)

const testClientSecret = "test-client-secret"

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	ctx := context.Background()
	logger := slog.Default()

	cfg := &Config{
		Environment:        "test",
		AccessTokenTTL:     10 * time.Minute,
		LongAccessTokenTTL: 4 * time.Hour,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		RefreshCookieName:  "lattice-refresh",
		CookieSameSite:     "Lax",
		ClientAuthPaths:    []string{"/auth/**"},
		ExcludePaths:       []string{"/.well-known/**"},
		DevAuthorities:     []string{"user"},
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	alice := &lattice.User{
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: string(hash),
		Enabled:      true,
		Roles:        []string{"user"},
	}
	if err := st.CreateUser(ctx, alice); err != nil {
		t.Fatal(err)
	}
	bob := &lattice.User{
		Email:        "bob@example.com",
		Username:     "bob",
		PasswordHash: string(hash),
		Enabled:      false,
		Roles:        []string{"user"},
	}
	if err := st.CreateUser(ctx, bob); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateClient(ctx, &lattice.Client{
		ClientID:   "client-1",
		ClientName: "web",
		Secret:     testClientSecret,
		Status:     lattice.ClientStatusActive,
		ExpiresAt:  time.Now().Add(time.Hour),
		Scopes:     []string{"read"},
	}); err != nil {
		t.Fatal(err)
	}

	prefix := "test"
	key, err := lattice.GenerateKey(&prefix)
	if err != nil {
		t.Fatal(err)
	}
	codec, err := lattice.NewCodec(key, lattice.CodecConfig{
		AccessTTL:     cfg.AccessTokenTTL,
		LongAccessTTL: cfg.LongAccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Environment:   cfg.Environment,
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := &Server{
		cfg:      cfg,
		store:    st,
		verifier: lattice.NewVerifier(st, st, logger),
		guard: lattice.NewGuard(lattice.GuardConfig{
			MinimumAuthorities: map[string][]string{
				lattice.DevelopmentKey:       cfg.DevAuthorities,
				lattice.ClientDevelopmentKey: cfg.ClientDevAuthorities,
			},
		}, logger),
		rotator: lattice.NewRotator(codec, st, logger),
		codec:   codec,
		key:     key,
		log:     logger,
	}

	authenticator := lattice.NewAuthenticator(codec, lattice.AuthenticatorConfig{
		ClientPaths:  cfg.ClientAuthPaths,
		ExcludePaths: cfg.ExcludePaths,
	}, logger)

	return buildRouter(srv, authenticator, logger)
}

func postJSON(e *echo.Echo, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func refreshCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "lattice-refresh" {
			return c
		}
	}
	t.Fatal("no refresh cookie in response")
	return nil
}

func TestLoginIssuesTokens(t *testing.T) {
	assert := assert.New(t)

	e := newTestServer(t)

	rec := postJSON(e, "/auth/token", tokenRequest{
		Entrypoint:   "alice@example.com",
		Password:     "hunter2",
		ClientID:     "client-1",
		ClientSecret: testClientSecret,
	})

	assert.Equal(http.StatusAccepted, rec.Code)

	var resp tokenResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(resp.AccessToken)
	assert.Empty(resp.RefreshToken)
	assert.Equal("Bearer", resp.TokenType)
	assert.Equal("alice", resp.Username)
	assert.Contains(resp.Authorities, "user")
	assert.NotEmpty(resp.BreadcrumbID)

	cookie := refreshCookieFrom(t, rec)
	assert.NotEmpty(cookie.Value)
}

func TestClientLoginReturnsRefreshTokenInBody(t *testing.T) {
	assert := assert.New(t)

	e := newTestServer(t)

	rec := postJSON(e, "/auth/token", tokenRequest{
		ClientID:     "client-1",
		ClientSecret: testClientSecret,
	})

	assert.Equal(http.StatusAccepted, rec.Code)

	var resp tokenResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(resp.AccessToken)
	assert.NotEmpty(resp.RefreshToken)
	assert.Empty(resp.Username)
}

func TestLoginWrongClientSecret(t *testing.T) {
	assert := assert.New(t)

	e := newTestServer(t)

	rec := postJSON(e, "/auth/token", tokenRequest{
		Entrypoint:   "alice@example.com",
		Password:     "hunter2",
		ClientID:     "client-1",
		ClientSecret: "wrong",
	})

	assert.Equal(http.StatusUnauthorized, rec.Code)

	var body errorBody
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal("1016", body.Code)
	assert.False(body.IsTokenExpired)
}

func TestLoginDisabledUser(t *testing.T) {
	assert := assert.New(t)

	e := newTestServer(t)

	rec := postJSON(e, "/auth/token", tokenRequest{
		Entrypoint:   "bob@example.com",
		Password:     "hunter2",
		ClientID:     "client-1",
		ClientSecret: testClientSecret,
	})

	assert.Equal(http.StatusUnauthorized, rec.Code)

	var body errorBody
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal("1008", body.Code)
}

func TestRefreshRotatesOnce(t *testing.T) {
	assert := assert.New(t)

	e := newTestServer(t)

	login := postJSON(e, "/auth/token", tokenRequest{
		Entrypoint:   "alice@example.com",
		Password:     "hunter2",
		ClientID:     "client-1",
		ClientSecret: testClientSecret,
	})
	assert.Equal(http.StatusAccepted, login.Code)
	first := refreshCookieFrom(t, login)

	refreshed := postJSON(e, "/auth/refresh-token", nil, first)
	assert.Equal(http.StatusAccepted, refreshed.Code)
	second := refreshCookieFrom(t, refreshed)
	assert.NotEqual(first.Value, second.Value)

	// the first token is spent
	replay := postJSON(e, "/auth/refresh-token", nil, first)
	assert.Equal(http.StatusUnauthorized, replay.Code)

	var body errorBody
	assert.NoError(json.Unmarshal(replay.Body.Bytes(), &body))
	assert.Equal("1043", body.Code)

	// the rotated token still works
	rotated := postJSON(e, "/auth/refresh-token", nil, second)
	assert.Equal(http.StatusAccepted, rotated.Code)
}

func TestRefreshWithoutCookie(t *testing.T) {
	assert := assert.New(t)

	e := newTestServer(t)

	rec := postJSON(e, "/auth/refresh-token", nil)
	assert.Equal(http.StatusUnauthorized, rec.Code)

	var body errorBody
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal("1040", body.Code)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	assert := assert.New(t)

	e := newTestServer(t)

	login := postJSON(e, "/auth/token", tokenRequest{
		Entrypoint:   "alice@example.com",
		Password:     "hunter2",
		ClientID:     "client-1",
		ClientSecret: testClientSecret,
	})
	cookie := refreshCookieFrom(t, login)

	logout := postJSON(e, "/auth/logout", nil, cookie)
	assert.Equal(http.StatusOK, logout.Code)
	assert.Equal(-1, refreshCookieFrom(t, logout).MaxAge)

	replay := postJSON(e, "/auth/refresh-token", nil, cookie)
	assert.Equal(http.StatusUnauthorized, replay.Code)

	// logout without a session is fine
	again := postJSON(e, "/auth/logout", nil)
	assert.Equal(http.StatusOK, again.Code)
}

func TestJwksPublishesPublicKey(t *testing.T) {
	assert := assert.New(t)

	e := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &jwks))
	if assert.Len(jwks.Keys, 1) {
		assert.Equal("EC", jwks.Keys[0]["kty"])
		assert.NotContains(jwks.Keys[0], "d")
	}
}

func TestBearerMiddlewareRejectsBadToken(t *testing.T) {
	assert := assert.New(t)

	e := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(http.StatusUnauthorized, rec.Code)

	var body errorBody
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal("1027", body.Code)
}
