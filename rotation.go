package lattice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Rotator issues and rotates refresh tokens. Every issued token gets exactly
// one durable record keyed by jti; consuming a token deletes its record, so a
// token refreshes at most once.
type Rotator struct {
	codec *Codec
	store RefreshStore
	log   *slog.Logger
	now   func() time.Time
}

func NewRotator(codec *Codec, store RefreshStore, logger *slog.Logger) *Rotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rotator{codec: codec, store: store, log: logger, now: time.Now}
}

// Issue signs a refresh token for the identity and persists its rotation
// record. provider and providerData carry optional SSO metadata.
func (r *Rotator) Issue(ctx context.Context, identity *Identity, provider string, providerData []byte) (string, *RefreshRecord, error) {
	token, jti, expiresAt, err := r.codec.RefreshToken(identity)
	if err != nil {
		return "", nil, fmt.Errorf("could not issue refresh token: %w", err)
	}
	rec := &RefreshRecord{
		JTI:          jti,
		ClientID:     identity.ClientID,
		UserID:       identity.UserID,
		AuthType:     identity.AuthType,
		IssuedAt:     r.now(),
		ExpiresAt:    expiresAt,
		Status:       RefreshStatusActive,
		Provider:     provider,
		ProviderData: providerData,
	}
	if err := r.store.CreateRefresh(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("could not persist refresh record: %w", err)
	}
	r.log.Info("refresh token issued", "jti", jti, "clientId", identity.ClientID)
	return token, rec, nil
}

// Consume validates a presented refresh token and deletes its record. The
// remote-address binding is enforced before the record is touched, so a
// mismatched caller cannot burn (or win) the rotation. After a successful
// return the token is spent; a second call fails with ErrRefreshTokenInvalid.
func (r *Rotator) Consume(ctx context.Context, token, remoteAddr string) (*Claims, *RefreshRecord, error) {
	claims, err := r.codec.Decode(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, nil, ErrRefreshTokenExpired
		}
		return nil, nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, nil, ErrRefreshTokenInvalid
	}
	if claims.RemoteAddress != remoteAddr {
		r.log.Warn("refresh from unexpected address",
			"jti", claims.ID, "bound", claims.RemoteAddress, "presented", remoteAddr)
		return nil, nil, ErrRemoteAddressAuth
	}
	rec, err := r.store.ConsumeRefresh(ctx, claims.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("could not consume refresh record: %w", err)
	}
	if rec == nil {
		r.log.Warn("refresh token already used or unknown", "jti", claims.ID)
		return nil, nil, ErrRefreshTokenInvalid
	}
	return claims, rec, nil
}

// Revoke deletes the record behind a refresh token at logout. A missing or
// undecodable token is not an error; logout is idempotent.
func (r *Rotator) Revoke(ctx context.Context, token string) error {
	claims, err := r.codec.Decode(token)
	if err != nil {
		r.log.Warn("revoking undecodable refresh token", "err", err)
		return nil
	}
	rec, err := r.store.ConsumeRefresh(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("could not delete refresh record: %w", err)
	}
	if rec == nil {
		r.log.Info("refresh record already gone", "jti", claims.ID)
	}
	return nil
}
