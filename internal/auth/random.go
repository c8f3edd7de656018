package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenBytes is the entropy behind session ids and CSRF tokens (64 hex chars)
const TokenBytes = 32

// GenerateToken returns TokenBytes of crypto/rand output, hex encoded
func GenerateToken() (string, error) {
	randomBytes := make([]byte, TokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
