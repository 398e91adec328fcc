package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// SecureTokenLength is the default length of generated one-off secrets
	SecureTokenLength = 32

	secureTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// TokenGenerator generates random one-off secrets such as email verification tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateSecureToken returns a random alphanumeric string of the given length
// drawn from crypto/rand. A non-positive length selects SecureTokenLength.
func (tg *TokenGenerator) GenerateSecureToken(length int) (string, error) {
	if length <= 0 {
		length = SecureTokenLength
	}

	alphabetLen := big.NewInt(int64(len(secureTokenAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		out[i] = secureTokenAlphabet[n.Int64()]
	}

	return string(out), nil
}

// HashToken computes the SHA256 hash of a token for storage and lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
