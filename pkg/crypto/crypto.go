// Package crypto provides bypass-credential generation and hashing.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

var ErrEmptySecret = errors.New("crypto: empty secret")

// GenerateSecret generates a random bypass secret (16 bytes, hex).
func GenerateSecret() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("crypto: generate secret: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}

// HashSecret hashes a bypass secret with bcrypt.
func HashSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("crypto: hash secret: %w", err)
	}
	return hash, nil
}

// CheckSecret reports whether secret matches hash. An empty hash never
// matches.
func CheckSecret(hash []byte, secret string) bool {
	if len(hash) == 0 || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}
