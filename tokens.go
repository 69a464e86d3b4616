package lattice

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Issuer is the fixed iss claim on every token this service signs.
const Issuer = "lattice"

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the signed claim set for both access and refresh tokens. The
// subject is always the client id; user fields appear only on user-login
// tokens, and refresh tokens carry a jti in RegisteredClaims.ID.
type Claims struct {
	jwt.RegisteredClaims
	TokenType     string   `json:"token_type"`
	AuthType      AuthType `json:"authentication_type"`
	Authorities   []string `json:"authorities,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
	Username      string   `json:"username,omitempty"`
	Email         string   `json:"email,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
	ClientID      string   `json:"client_id"`
	ClientName    string   `json:"client_name,omitempty"`
	ClientType    string   `json:"client_type,omitempty"`
	Origins       []string `json:"origins,omitempty"`
	RemoteAddress string   `json:"remote_address,omitempty"`
	Environment   string   `json:"environment,omitempty"`
}

// CodecConfig sets token lifetimes and the environment tag stamped into every
// token. LongAccessTTL applies when the login request carries no Origin
// header (server-to-server and tooling clients).
type CodecConfig struct {
	AccessTTL     time.Duration
	LongAccessTTL time.Duration
	RefreshTTL    time.Duration
	Environment   string
}

// Codec signs claims into tokens and verifies presented tokens back into
// claims. The key pair is loaded once and treated as immutable; all methods
// are safe for concurrent use.
type Codec struct {
	signKey   *ecdsa.PrivateKey
	verifyKey *ecdsa.PublicKey
	kid       string
	cfg       CodecConfig
	now       func() time.Time
}

// NewCodec builds a codec from a private JWK, as produced by GenerateKey.
func NewCodec(key jwk.Key, cfg CodecConfig) (*Codec, error) {
	var pkey ecdsa.PrivateKey
	if err := key.Raw(&pkey); err != nil {
		return nil, fmt.Errorf("could not load private key from provided jwk: %w", err)
	}
	return &Codec{
		signKey:   &pkey,
		verifyKey: &pkey.PublicKey,
		kid:       key.KeyID(),
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// AccessToken signs a short-lived access token for the identity. hasOrigin
// selects the browser TTL; originless requests get the long TTL.
func (c *Codec) AccessToken(identity *Identity, hasOrigin bool) (string, error) {
	now := c.now()
	ttl := c.cfg.LongAccessTTL
	if hasOrigin {
		ttl = c.cfg.AccessTTL
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   identity.ClientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType:     TokenTypeAccess,
		AuthType:      identity.AuthType,
		Authorities:   identity.Authorities,
		Scopes:        identity.Scopes,
		ClientID:      identity.ClientID,
		ClientName:    identity.ClientName,
		ClientType:    identity.ClientType,
		Origins:       identity.Origins,
		RemoteAddress: identity.RemoteAddress,
		Environment:   c.cfg.Environment,
	}
	if identity.AuthType == UserLogin {
		claims.UserID = identity.UserID
		claims.Username = identity.Username
		claims.Email = identity.Email
		claims.Roles = identity.Roles
	}
	return c.sign(claims)
}

// RefreshToken signs a days-scale refresh token with a fresh jti and returns
// the token, the jti and the expiry for the rotation record.
func (c *Codec) RefreshToken(identity *Identity) (string, string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.cfg.RefreshTTL)
	jti := uuid.NewString()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   identity.ClientID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenType:     TokenTypeRefresh,
		AuthType:      identity.AuthType,
		ClientID:      identity.ClientID,
		ClientName:    identity.ClientName,
		ClientType:    identity.ClientType,
		Origins:       identity.Origins,
		RemoteAddress: identity.RemoteAddress,
		Environment:   c.cfg.Environment,
	}
	if identity.AuthType == UserLogin {
		claims.UserID = identity.UserID
	}
	token, err := c.sign(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

func (c *Codec) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	if c.kid != "" {
		token.Header["kid"] = c.kid
	}
	tokenString, err := token.SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Decode verifies a presented token and returns its claims. Expiry is
// classified before any other validation failure so an expired-but-genuine
// token never reads as malformed.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return c.verifyKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(Issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
