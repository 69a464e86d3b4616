package lattice

import (
	"log/slog"
	"strings"
)

// AuthenticatorConfig carries the request-time policy applied to presented
// tokens.
type AuthenticatorConfig struct {
	// RemoteAddressBinding gates the user-token address check. Client tokens
	// are always bound.
	RemoteAddressBinding bool
	// ContextPath is prefixed to every pattern before matching.
	ContextPath string
	// ClientPaths are request paths reachable with client-only credentials.
	ClientPaths []string
	// ExcludePaths are globally reachable paths.
	ExcludePaths []string
}

// Authenticator turns a bearer token into an identity without a store round
// trip, then applies remote-address and path-tier policy.
type Authenticator struct {
	codec *Codec
	cfg   AuthenticatorConfig
	log   *slog.Logger
}

func NewAuthenticator(codec *Codec, cfg AuthenticatorConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{codec: codec, cfg: cfg, log: logger}
}

// BearerToken extracts the token from an Authorization header value. An empty
// result is not an error; the request continues anonymously.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return header[len(prefix):]
	}
	return ""
}

// Authenticate decodes the token, rejects refresh tokens outright, rebuilds
// the identity from claims and applies the policy checks for the request's
// path and resolved client address.
func (a *Authenticator) Authenticate(token, requestPath, remoteAddr string) (*Identity, error) {
	claims, err := a.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType == TokenTypeRefresh {
		a.log.Warn("refresh token presented for resource request", "clientId", claims.ClientID)
		return nil, ErrRefreshNotAllowed
	}
	switch claims.AuthType {
	case UserLogin:
		return a.authenticateUserClaims(claims, remoteAddr)
	case ClientLogin:
		return a.authenticateClientClaims(claims, requestPath, remoteAddr)
	default:
		return nil, ErrTokenMalformed
	}
}

func (a *Authenticator) authenticateUserClaims(claims *Claims, remoteAddr string) (*Identity, error) {
	identity := identityFromClaims(claims)
	if a.cfg.RemoteAddressBinding {
		if err := a.checkRemoteAddress(identity, remoteAddr); err != nil {
			return nil, err
		}
	}
	return identity, nil
}

func (a *Authenticator) authenticateClientClaims(claims *Claims, requestPath, remoteAddr string) (*Identity, error) {
	if !a.pathAllowed(requestPath) {
		a.log.Warn("full authentication required", "path", requestPath, "clientId", claims.ClientID)
		return nil, ErrFullAuthRequired
	}
	identity := identityFromClaims(claims)
	if err := a.checkRemoteAddress(identity, remoteAddr); err != nil {
		return nil, err
	}
	return identity, nil
}

func (a *Authenticator) checkRemoteAddress(identity *Identity, remoteAddr string) error {
	if identity.RemoteAddress != remoteAddr {
		a.log.Warn("remote address mismatch",
			"clientId", identity.ClientID, "bound", identity.RemoteAddress, "presented", remoteAddr)
		return ErrRemoteAddressAuth
	}
	return nil
}

func (a *Authenticator) pathAllowed(requestPath string) bool {
	for _, pattern := range a.cfg.ClientPaths {
		if matchPath(a.cfg.ContextPath+pattern, requestPath) {
			return true
		}
	}
	for _, pattern := range a.cfg.ExcludePaths {
		if matchPath(a.cfg.ContextPath+pattern, requestPath) {
			return true
		}
	}
	return false
}

// identityFromClaims rebuilds the principal carried by an access token. User
// fields are simply absent from client-login claims, so one builder serves
// both shapes.
func identityFromClaims(claims *Claims) *Identity {
	return &Identity{
		AuthType:      claims.AuthType,
		UserID:        claims.UserID,
		Username:      claims.Username,
		Email:         claims.Email,
		Roles:         claims.Roles,
		ClientID:      claims.ClientID,
		ClientName:    claims.ClientName,
		ClientType:    claims.ClientType,
		Scopes:        claims.Scopes,
		Origins:       claims.Origins,
		Authorities:   claims.Authorities,
		RemoteAddress: claims.RemoteAddress,
	}
}

// matchPath matches a request path against an ant-style pattern: `*` spans a
// single segment, a trailing `/**` spans any remainder.
func matchPath(pattern, requestPath string) bool {
	patternParts := strings.Split(strings.Trim(pattern, "/"), "/")
	pathParts := strings.Split(strings.Trim(requestPath, "/"), "/")
	for i, part := range patternParts {
		if part == "**" {
			return true
		}
		if i >= len(pathParts) {
			return false
		}
		if part != "*" && part != pathParts[i] {
			return false
		}
	}
	return len(patternParts) == len(pathParts)
}
