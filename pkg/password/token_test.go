package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Run("ExactLength", func(t *testing.T) {
		for _, length := range []int{1, 16, 32, 64} {
			token, err := GenerateToken(length)
			require.NoError(t, err)
			assert.Len(t, token, length)
		}
	})

	t.Run("AlphanumericOnly", func(t *testing.T) {
		token, err := GenerateToken(256)
		require.NoError(t, err)
		for _, c := range token {
			assert.True(t, strings.ContainsRune(tokenAlphabet, c), "unexpected character %q", c)
		}
	})

	t.Run("Unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			token, err := GenerateToken(32)
			require.NoError(t, err)
			assert.False(t, seen[token], "token %s generated twice", token)
			seen[token] = true
		}
	})

	t.Run("InvalidLength", func(t *testing.T) {
		_, err := GenerateToken(0)
		assert.Error(t, err)
		_, err = GenerateToken(-5)
		assert.Error(t, err)
	})
}
