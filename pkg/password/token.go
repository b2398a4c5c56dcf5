package password

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateToken returns a cryptographically secure random string of exactly
// length alphanumeric characters, used for password reset tokens.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", length)
	}

	max := big.NewInt(int64(len(tokenAlphabet)))
	token := make([]byte, length)
	for i := range token {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate secure token: %w", err)
		}
		token[i] = tokenAlphabet[n.Int64()]
	}

	return string(token), nil
}
