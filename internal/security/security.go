// Package security hashes and verifies the admin token guarding dataset refreshes.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// GenerateToken generates a cryptographically secure random token
func GenerateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
