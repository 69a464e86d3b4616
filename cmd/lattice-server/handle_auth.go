package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/lattice-auth/lattice"
	"github.com/lattice-auth/lattice/internal/sso"
	"github.com/lattice-auth/lattice/internal/store"
)

type Server struct {
	cfg      *Config
	store    *store.Store
	verifier *lattice.Verifier
	guard    *lattice.Guard
	rotator  *lattice.Rotator
	codec    *lattice.Codec
	key      jwk.Key
	google   *sso.GoogleVerifier
	facebook *sso.FacebookVerifier
	log      *slog.Logger
}

type tokenRequest struct {
	Entrypoint   string `json:"entrypoint" form:"entrypoint"`
	Password     string `json:"password" form:"password"`
	ClientID     string `json:"clientId" form:"clientId"`
	ClientSecret string `json:"clientSecret" form:"clientSecret"`
}

type ssoTokenRequest struct {
	AccessToken  string `json:"accessToken" form:"accessToken"`
	ClientID     string `json:"clientId" form:"clientId"`
	ClientSecret string `json:"clientSecret" form:"clientSecret"`
}

type tokenResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	TokenType    string   `json:"tokenType"`
	UserID       string   `json:"userId,omitempty"`
	Username     string   `json:"username,omitempty"`
	ClientID     string   `json:"clientId"`
	Authorities  []string `json:"authorities,omitempty"`
	BreadcrumbID string   `json:"breadcrumbId,omitempty"`
}

type messageResponse struct {
	Message      string `json:"message"`
	BreadcrumbID string `json:"breadcrumbId,omitempty"`
}

// handleToken is the credential login. The response is 202: token issuance is
// acceptance of the credentials, not creation of a resource.
func (s *Server) handleToken(e echo.Context) error {
	var req tokenRequest
	if err := e.Bind(&req); err != nil {
		return writeAuthError(e, lattice.ErrEntrypointMandatory)
	}
	identity, err := s.verifier.Verify(e.Request().Context(), lattice.Credentials{
		Entrypoint:   req.Entrypoint,
		Password:     req.Password,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
	})
	if err != nil {
		return writeAuthError(e, err)
	}
	identity.RemoteAddress = remoteAddr(e)
	if err := s.guard.Check(identity, e.Request().Header.Get("Origin")); err != nil {
		return writeAuthError(e, err)
	}
	return s.respondWithTokens(e, identity, "", nil)
}

// handleRefresh rotates the refresh token from the cookie. The spent record's
// identity is re-verified against the stores so disabling a user or client
// takes effect at the next rotation.
func (s *Server) handleRefresh(e echo.Context) error {
	cookie, err := e.Cookie(s.cfg.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return writeAuthError(e, lattice.ErrNotLoggedIn)
	}
	ctx := e.Request().Context()
	_, rec, err := s.rotator.Consume(ctx, cookie.Value, remoteAddr(e))
	if err != nil {
		return writeAuthError(e, err)
	}
	identity, err := s.rebuildIdentity(ctx, rec)
	if err != nil {
		return writeAuthError(e, err)
	}
	identity.RemoteAddress = remoteAddr(e)
	if err := s.guard.Check(identity, e.Request().Header.Get("Origin")); err != nil {
		return writeAuthError(e, err)
	}
	return s.respondWithTokens(e, identity, rec.Provider, rec.ProviderData)
}

func (s *Server) rebuildIdentity(ctx context.Context, rec *lattice.RefreshRecord) (*lattice.Identity, error) {
	client, err := s.verifier.VerifyClientByID(ctx, rec.ClientID)
	if err != nil {
		return nil, err
	}
	if rec.AuthType != lattice.UserLogin {
		return lattice.ClientIdentity(client), nil
	}
	user, err := s.verifier.VerifyUserByID(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}
	return lattice.UserIdentity(user, client), nil
}

// handleLogout revokes the refresh record and expires the cookie. Safe to call
// repeatedly.
func (s *Server) handleLogout(e echo.Context) error {
	cookie, err := e.Cookie(s.cfg.RefreshCookieName)
	if err == nil && cookie.Value != "" {
		if err := s.rotator.Revoke(e.Request().Context(), cookie.Value); err != nil {
			return writeAuthError(e, err)
		}
	}
	expired := s.refreshCookie("", e.Request().Header.Get("Origin"))
	expired.MaxAge = -1
	e.SetCookie(expired)
	return e.JSON(http.StatusOK, messageResponse{
		Message:      "logged out",
		BreadcrumbID: breadcrumb(e),
	})
}

func (s *Server) handleGoogle(e echo.Context) error {
	var req ssoTokenRequest
	if err := e.Bind(&req); err != nil {
		return writeAuthError(e, lattice.ErrClientIDMandatory)
	}
	ctx := e.Request().Context()
	info, err := s.google.TokenInfo(ctx, req.AccessToken)
	if err != nil {
		s.log.Warn("google token rejected", "err", err, "breadcrumbId", breadcrumb(e))
		return writeAuthError(e, lattice.ErrTokenMalformed)
	}
	providerData, _ := json.Marshal(info)
	return s.handleSSOLogin(e, req, "google", info.Email, info.Name, providerData)
}

func (s *Server) handleFacebook(e echo.Context) error {
	var req ssoTokenRequest
	if err := e.Bind(&req); err != nil {
		return writeAuthError(e, lattice.ErrClientIDMandatory)
	}
	ctx := e.Request().Context()
	if _, err := s.facebook.ValidateToken(ctx, req.AccessToken); err != nil {
		s.log.Warn("facebook token rejected", "err", err, "breadcrumbId", breadcrumb(e))
		return writeAuthError(e, lattice.ErrTokenMalformed)
	}
	details, err := s.facebook.UserDetails(ctx, req.AccessToken)
	if err != nil {
		s.log.Warn("facebook profile fetch failed", "err", err, "breadcrumbId", breadcrumb(e))
		return writeAuthError(e, lattice.ErrTokenMalformed)
	}
	providerData, _ := json.Marshal(details)
	return s.handleSSOLogin(e, req, "facebook", details.Email, details.Name, providerData)
}

// handleSSOLogin finishes a provider login once the provider has vouched for
// the email. The calling client still authenticates with its secret, and a
// first-time email gets an account created on the spot.
func (s *Server) handleSSOLogin(e echo.Context, req ssoTokenRequest, provider, email, name string, providerData []byte) error {
	ctx := e.Request().Context()
	client, err := s.verifier.VerifyClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return writeAuthError(e, err)
	}
	user, err := s.findOrCreateSSOUser(ctx, provider, email, name)
	if err != nil {
		return writeAuthError(e, err)
	}
	identity := lattice.UserIdentity(user, client)
	identity.RemoteAddress = remoteAddr(e)
	if err := s.guard.Check(identity, e.Request().Header.Get("Origin")); err != nil {
		return writeAuthError(e, err)
	}
	return s.respondWithTokens(e, identity, provider, providerData)
}

func (s *Server) findOrCreateSSOUser(ctx context.Context, provider, email, name string) (*lattice.User, error) {
	user, err := s.store.FindUserByEntrypoint(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &lattice.User{
			Email:     email,
			Username:  ssoUsername(email),
			Enabled:   true,
			Roles:     []string{"user"},
			Providers: []string{provider},
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			return nil, err
		}
		s.log.Info("created account from provider login",
			"provider", provider, "userId", user.UserID, "name", name)
		return user, nil
	}
	// The account exists; the provider login is still subject to the same
	// enabled and locked checks as a password login.
	return s.verifier.VerifyUserByID(ctx, user.UserID)
}

// ssoUsername derives a unique handle from the email local part.
func ssoUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local + "-" + uuid.NewString()[:8]
}

func (s *Server) handleJwks(e echo.Context) error {
	resp, err := lattice.CreateJwksResponseObject(s.key)
	if err != nil {
		return writeAuthError(e, err)
	}
	return e.JSON(http.StatusOK, resp)
}

// respondWithTokens signs the token pair for the identity. User logins get the
// refresh token as a cookie; client logins get it in the body since they have
// no cookie jar.
func (s *Server) respondWithTokens(e echo.Context, identity *lattice.Identity, provider string, providerData []byte) error {
	origin := e.Request().Header.Get("Origin")
	accessToken, err := s.codec.AccessToken(identity, origin != "")
	if err != nil {
		return writeAuthError(e, err)
	}
	refreshToken, _, err := s.rotator.Issue(e.Request().Context(), identity, provider, providerData)
	if err != nil {
		return writeAuthError(e, err)
	}
	resp := tokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ClientID:     identity.ClientID,
		Authorities:  identity.Authorities,
		BreadcrumbID: breadcrumb(e),
	}
	if identity.AuthType == lattice.UserLogin {
		resp.UserID = identity.UserID
		resp.Username = identity.Username
		e.SetCookie(s.refreshCookie(refreshToken, origin))
	} else {
		resp.RefreshToken = refreshToken
	}
	return e.JSON(http.StatusAccepted, resp)
}

// refreshCookie builds the refresh-token cookie. A localhost origin drops
// HttpOnly so browser dev tooling can read the token during development.
func (s *Server) refreshCookie(value, origin string) *http.Cookie {
	httpOnly := s.cfg.CookieHTTPOnly
	if origin != "" {
		httpOnly = !strings.Contains(origin, "localhost:")
	}
	return &http.Cookie{
		Name:     s.cfg.RefreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.cfg.RefreshTokenTTL / time.Second),
		HttpOnly: httpOnly,
		Secure:   s.cfg.CookieSecure,
		SameSite: parseSameSite(s.cfg.CookieSameSite),
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
