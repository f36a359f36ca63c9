package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// APIKeyPrefix marks live provider API keys.
const APIKeyPrefix = "sk_live_"

// GenerateAPIKey returns a new random provider API key.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}

// HashAPIKey returns the hex SHA-256 of key. Only hashes are stored.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// LooksLikeAPIKey reports whether a bearer credential is an API key rather
// than a JWT.
func LooksLikeAPIKey(credential string) bool {
	return strings.HasPrefix(credential, "sk_")
}
