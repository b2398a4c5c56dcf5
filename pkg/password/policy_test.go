package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyValidate(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"Valid", "Abc12345!", true},
		{"Empty", "", false},
		{"TooShort", "Ab1!", false},
		{"MissingUppercase", "abc12345!", false},
		{"MissingLowercase", "ABC12345!", false},
		{"MissingDigit", "Abcdefgh!", false},
		{"MissingSpecialChar", "Abc123456", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.password)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				var policyErr *PolicyError
				assert.ErrorAs(t, err, &policyErr)
				assert.NotContains(t, policyErr.Error(), tt.password, "policy error must not carry the password")
			}
		})
	}

	t.Run("TooLong", func(t *testing.T) {
		p := DefaultPolicy()
		p.MaxLength = 12
		err := p.Validate("Abc12345!Abc12345!")
		assert.Error(t, err)
	})

	t.Run("RelaxedPolicy", func(t *testing.T) {
		p := Policy{MinLength: 4}
		assert.NoError(t, p.Validate("abcd"))
	})

	t.Run("ExceedsHasherByteLimit", func(t *testing.T) {
		err := policy.Validate(strings.Repeat("Aa1!", 20))
		assert.Error(t, err)
		var policyErr *PolicyError
		assert.ErrorAs(t, err, &policyErr)
	})

	t.Run("MultiByteCountedAsRunes", func(t *testing.T) {
		p := Policy{MinLength: 8}
		assert.Error(t, p.Validate("Ááééîî"), "6 runes is below the minimum even at 12 bytes")
		assert.NoError(t, p.Validate("Ááééîîõõ"))
	})

	t.Run("MultiByteExceedsByteLimit", func(t *testing.T) {
		p := Policy{MinLength: 8, MaxLength: 100}
		assert.Error(t, p.Validate(strings.Repeat("ÁáÉé", 10)), "40 runes but 80 bytes")
	})
}

func TestPolicyRequirements(t *testing.T) {
	reqs := DefaultPolicy().Requirements()
	assert.Contains(t, reqs, "8-72 characters")
	assert.Contains(t, reqs, "uppercase")
	assert.Contains(t, reqs, "lowercase")
	assert.Contains(t, reqs, "number")
	assert.Contains(t, reqs, "special character")
}
