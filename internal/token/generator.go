package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// refreshTokenSize is 512 bits of entropy
const refreshTokenSize = 64

// GenerateRefreshToken returns an opaque base64url token read from crypto/rand
func GenerateRefreshToken() (string, error) {
	raw := make([]byte, refreshTokenSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// signingSecretSize matches the HS256 block size
const signingSecretSize = 64

// GenerateSigningSecret returns a random standard-base64 secret suitable for JWT_SECRET
func GenerateSigningSecret() (string, error) {
	raw := make([]byte, signingSecretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
