package password

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// bcrypt reads at most 72 bytes of input; a longer password must fail the
// policy check up front instead of erroring inside the hasher.
const maxPasswordBytes = 72

// Policy defines the requirements for password complexity
type Policy struct {
	MinLength          int
	MaxLength          int
	RequireUppercase   bool
	RequireLowercase   bool
	RequireDigit       bool
	RequireSpecialChar bool
	SpecialChars       string
}

// DefaultPolicy returns the default password policy
func DefaultPolicy() Policy {
	return Policy{
		MinLength:          8,
		MaxLength:          maxPasswordBytes,
		RequireUppercase:   true,
		RequireLowercase:   true,
		RequireDigit:       true,
		RequireSpecialChar: true,
		SpecialChars:       "!@#$%^&*()_+-=[]{}|;:,.<>?",
	}
}

// PolicyError is returned when a password does not meet complexity
// requirements. It carries the requirements text only, never the password.
type PolicyError struct {
	Requirements string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("password does not meet requirements: %s", e.Requirements)
}

var (
	uppercaseRe = regexp.MustCompile(`[A-Z]`)
	lowercaseRe = regexp.MustCompile(`[a-z]`)
	digitRe     = regexp.MustCompile(`[0-9]`)
)

// Validate checks a password against the policy. An empty password is a
// plain policy violation, not a fault.
func (p Policy) Validate(password string) error {
	runes := utf8.RuneCountInString(password)
	if runes < p.MinLength || (p.MaxLength > 0 && runes > p.MaxLength) {
		return &PolicyError{Requirements: p.Requirements()}
	}

	// Length limits count characters, but the hasher's input limit is in
	// bytes; multi-byte passwords can hit it below MaxLength.
	if len(password) > maxPasswordBytes {
		return &PolicyError{Requirements: p.Requirements()}
	}

	if p.RequireUppercase && !uppercaseRe.MatchString(password) {
		return &PolicyError{Requirements: p.Requirements()}
	}

	if p.RequireLowercase && !lowercaseRe.MatchString(password) {
		return &PolicyError{Requirements: p.Requirements()}
	}

	if p.RequireDigit && !digitRe.MatchString(password) {
		return &PolicyError{Requirements: p.Requirements()}
	}

	if p.RequireSpecialChar && !strings.ContainsAny(password, p.SpecialChars) {
		return &PolicyError{Requirements: p.Requirements()}
	}

	return nil
}

// Requirements returns a human-readable description of the policy,
// suitable for surfacing to clients.
func (p Policy) Requirements() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Password must be %d-%d characters long", p.MinLength, p.MaxLength)

	if p.RequireUppercase {
		b.WriteString(", contain at least one uppercase letter")
	}
	if p.RequireLowercase {
		b.WriteString(", contain at least one lowercase letter")
	}
	if p.RequireDigit {
		b.WriteString(", contain at least one number")
	}
	if p.RequireSpecialChar {
		fmt.Fprintf(&b, ", contain at least one special character (%s)", p.SpecialChars)
	}

	return b.String()
}
