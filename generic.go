package lattice

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/lattice-auth/lattice/internal/helpers"
)

// GenerateKey creates a fresh P-256 signing key as a JWK, with a timestamped
// key id.
func GenerateKey(kidPrefix *string) (jwk.Key, error) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	key, err := jwk.FromRaw(privKey)
	if err != nil {
		return nil, err
	}

	var kid string
	if kidPrefix != nil {
		kid = fmt.Sprintf("%s-%d", *kidPrefix, time.Now().Unix())
	} else {
		kid = fmt.Sprintf("%d", time.Now().Unix())
	}

	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateClientSecret produces a random pre-shared secret for a client
// record.
func GenerateClientSecret() (string, error) {
	return helpers.GenerateToken(32)
}

type JwksResponseObject struct {
	Keys []jwk.Key `json:"keys"`
}

// CreateJwksResponseObject publishes the verification half of the signing
// key.
func CreateJwksResponseObject(key jwk.Key) (*JwksResponseObject, error) {
	pub, err := key.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("could not derive public key: %w", err)
	}
	return &JwksResponseObject{Keys: []jwk.Key{pub}}, nil
}

func ParseJWKFromBytes(b []byte) (jwk.Key, error) {
	return jwk.ParseKey(b)
}
