package auth

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRole is assigned to every newly registered user
const DefaultRole = "USER"

// Audit actions written synchronously with the triggering state change
const (
	AuditLoginSuccess           = "LOGIN_SUCCESS"
	AuditUserCreated            = "USER_CREATED"
	AuditLogout                 = "LOGOUT"
	AuditPasswordResetRequested = "PASSWORD_RESET_REQUESTED"
	AuditPasswordReset          = "PASSWORD_RESET"
)

// User is the identity record. Users are never physically deleted in this
// subsystem; deactivation flips Active instead.
type User struct {
	ID        uuid.UUID
	Email     string
	Username  string
	Active    bool
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	LastLogin *time.Time
	Roles     []string
}

// CanAuthenticate reports whether the user may log in or refresh tokens
func (u User) CanAuthenticate() bool {
	return u.Active && u.Verified
}

// Credential holds the password hash for a user, exactly one per user.
// The plaintext is never stored.
type Credential struct {
	UserID       uuid.UUID
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is a persisted, revocable long-lived token. Multiple live
// tokens per user are allowed for multi-device sessions.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// PasswordResetToken is a single-use token. At most one unused, unexpired
// token exists per user; issuing a new one invalidates the rest.
type PasswordResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// LoginAttempt is an append-only record used for rate limiting and audit
type LoginAttempt struct {
	ID          uuid.UUID
	Identifier  string
	IPAddress   string
	Success     bool
	AttemptedAt time.Time
}

// Role is a named permission group, static reference data
type Role struct {
	ID   uuid.UUID
	Name string
}

// AuditLog is an append-only record written inside the same transaction as
// the state change it describes
type AuditLog struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	Action    string
	Details   map[string]string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}
