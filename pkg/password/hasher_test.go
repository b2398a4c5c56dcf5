package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	t.Run("ValidPassword", func(t *testing.T) {
		hash, err := hasher.Hash("validPassword123!")
		assert.NoError(t, err)
		assert.NotEmpty(t, hash)

		match, err := hasher.Verify("validPassword123!", hash)
		assert.NoError(t, err)
		assert.True(t, match, "the password should match its hash")
	})

	t.Run("DifferentSaltPerCall", func(t *testing.T) {
		first, err := hasher.Hash("samePassword1!")
		assert.NoError(t, err)
		second, err := hasher.Hash("samePassword1!")
		assert.NoError(t, err)

		assert.NotEqual(t, first, second, "two hashes of the same password must differ")

		match, err := hasher.Verify("samePassword1!", first)
		assert.NoError(t, err)
		assert.True(t, match)
		match, err = hasher.Verify("samePassword1!", second)
		assert.NoError(t, err)
		assert.True(t, match)
	})

	t.Run("IncorrectPassword", func(t *testing.T) {
		hash, err := hasher.Hash("correctPassword1!")
		assert.NoError(t, err)

		match, err := hasher.Verify("incorrectPassword1!", hash)
		assert.NoError(t, err, "a mismatch is not an error")
		assert.False(t, match)
	})

	t.Run("EmptyPassword", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.Error(t, err)

		match, err := hasher.Verify("", "somehash")
		assert.Error(t, err)
		assert.False(t, match)
	})

	t.Run("CorruptedHash", func(t *testing.T) {
		match, err := hasher.Verify("password1!", "not-a-bcrypt-hash")
		assert.Error(t, err)
		assert.False(t, match)
	})

	t.Run("OutOfRangeCostFallsBack", func(t *testing.T) {
		h := NewBcryptHasher(500)
		assert.Equal(t, bcrypt.DefaultCost, h.cost)
	})
}
