package lattice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()

	prefix := "test"
	key, err := GenerateKey(&prefix)
	if err != nil {
		t.Fatal(err)
	}

	codec, err := NewCodec(key, CodecConfig{
		AccessTTL:     10 * time.Minute,
		LongAccessTTL: 4 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		Environment:   "test",
	})
	if err != nil {
		t.Fatal(err)
	}
	return codec
}

func testUserIdentity() *Identity {
	return UserIdentity(
		&User{
			UserID:   "user-1",
			Username: "alice",
			Email:    "alice@example.com",
			Roles:    []string{"user", "admin"},
			Enabled:  true,
		},
		&Client{
			ClientID:   "client-1",
			ClientName: "web",
			ClientType: "EXTERNAL",
			Scopes:     []string{"read"},
			Origins:    []string{"https://app.example.com"},
		},
	)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	assert := assert.New(t)

	codec := newTestCodec(t)
	identity := testUserIdentity()
	identity.RemoteAddress = "10.0.0.1"

	token, err := codec.AccessToken(identity, true)
	assert.NoError(err)

	claims, err := codec.Decode(token)
	assert.NoError(err)

	assert.Equal(TokenTypeAccess, claims.TokenType)
	assert.Equal(UserLogin, claims.AuthType)
	assert.Equal(Issuer, claims.Issuer)
	assert.Equal("client-1", claims.Subject)
	assert.Equal("user-1", claims.UserID)
	assert.Equal("alice", claims.Username)
	assert.Equal("alice@example.com", claims.Email)
	assert.Equal([]string{"user", "admin"}, claims.Roles)
	assert.Equal([]string{"user", "admin", "read"}, claims.Authorities)
	assert.Equal("client-1", claims.ClientID)
	assert.Equal([]string{"https://app.example.com"}, claims.Origins)
	assert.Equal("10.0.0.1", claims.RemoteAddress)
	assert.Equal("test", claims.Environment)
}

func TestAccessTokenTTLByOrigin(t *testing.T) {
	assert := assert.New(t)

	codec := newTestCodec(t)
	issued := time.Now().Truncate(time.Second)
	codec.now = func() time.Time { return issued }

	short, err := codec.AccessToken(testUserIdentity(), true)
	assert.NoError(err)
	long, err := codec.AccessToken(testUserIdentity(), false)
	assert.NoError(err)

	shortClaims, err := codec.Decode(short)
	assert.NoError(err)
	longClaims, err := codec.Decode(long)
	assert.NoError(err)

	assert.Equal(issued.Add(10*time.Minute).Unix(), shortClaims.ExpiresAt.Unix())
	assert.Equal(issued.Add(4*time.Hour).Unix(), longClaims.ExpiresAt.Unix())
}

func TestAccessTokenOmitsUserClaimsForClientLogin(t *testing.T) {
	assert := assert.New(t)

	codec := newTestCodec(t)
	identity := ClientIdentity(&Client{
		ClientID: "client-1",
		Scopes:   []string{"read"},
	})

	token, err := codec.AccessToken(identity, true)
	assert.NoError(err)

	claims, err := codec.Decode(token)
	assert.NoError(err)
	assert.Equal(ClientLogin, claims.AuthType)
	assert.Empty(claims.UserID)
	assert.Empty(claims.Username)
	assert.Empty(claims.Email)
	assert.Empty(claims.Roles)
}

func TestRefreshTokenCarriesJTI(t *testing.T) {
	assert := assert.New(t)

	codec := newTestCodec(t)

	token, jti, expiresAt, err := codec.RefreshToken(testUserIdentity())
	assert.NoError(err)
	assert.NotEmpty(jti)

	claims, err := codec.Decode(token)
	assert.NoError(err)
	assert.Equal(TokenTypeRefresh, claims.TokenType)
	assert.Equal(jti, claims.ID)
	assert.Equal(expiresAt.Unix(), claims.ExpiresAt.Unix())
	assert.Equal("user-1", claims.UserID)
}

func TestDecodeExpiredToken(t *testing.T) {
	assert := assert.New(t)

	codec := newTestCodec(t)
	codec.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }

	token, err := codec.AccessToken(testUserIdentity(), true)
	assert.NoError(err)

	_, err = codec.Decode(token)
	assert.ErrorIs(err, ErrTokenExpired)
	assert.NotErrorIs(err, ErrTokenMalformed)
}

func TestDecodeGarbageToken(t *testing.T) {
	assert := assert.New(t)

	codec := newTestCodec(t)

	_, err := codec.Decode("not.a.token")
	assert.ErrorIs(err, ErrTokenMalformed)
}

func TestDecodeRejectsForeignKey(t *testing.T) {
	assert := assert.New(t)

	signer := newTestCodec(t)
	verifier := newTestCodec(t)

	token, err := signer.AccessToken(testUserIdentity(), true)
	assert.NoError(err)

	_, err = verifier.Decode(token)
	assert.ErrorIs(err, ErrTokenMalformed)
}
