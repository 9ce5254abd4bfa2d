package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// RandomSecret returns n random bytes encoded as unpadded base64url.
func RandomSecret(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid secret size")
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
