package helpers

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateToken returns len random bytes hex-encoded.
func GenerateToken(len int) (string, error) {
	b := make([]byte, len)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
