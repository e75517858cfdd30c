package security

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrInvalidKey is returned when the application secret is unusable.
var ErrInvalidKey = errors.New("invalid key")

const (
	minSecretLen = 16
	keyLen       = 32
	keySalt      = "booking-intake"
)

// DeriveKey derives a purpose-bound 256-bit key from the application secret.
func DeriveKey(secret, purpose string) ([]byte, error) {
	if len(secret) < minSecretLen {
		return nil, ErrInvalidKey
	}
	r := hkdf.New(sha256.New, []byte(secret), []byte(keySalt), []byte(purpose))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
