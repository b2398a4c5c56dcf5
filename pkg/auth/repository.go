package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors shared by all repository implementations
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
)

// CreateUserParams holds the fields for creating a user
type CreateUserParams struct {
	Email    string
	Username string
	Active   bool
	Verified bool
}

// RecordLoginAttemptParams holds the fields for an attempt log entry
type RecordLoginAttemptParams struct {
	Identifier string
	IPAddress  string
	Success    bool
}

// CreateAuditLogParams holds the fields for an audit row
type CreateAuditLogParams struct {
	UserID    *uuid.UUID
	Action    string
	Details   map[string]string
	IPAddress string
	UserAgent string
}

// Repository defines the persistence operations of the credential store.
// Implementations: PostgresRepository (pgx) and InMemoryRepository (tests).
type Repository interface {
	// WithTx runs fn inside one atomic transaction. A returned error rolls
	// the whole transaction back.
	WithTx(ctx context.Context, fn func(Repository) error) error

	// User operations
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	FindUserByIdentifier(ctx context.Context, identifier string) (User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, when time.Time) error
	SetUserActive(ctx context.Context, id uuid.UUID, active bool) error

	// Credential operations
	CreateCredential(ctx context.Context, userID uuid.UUID, passwordHash string) error
	GetCredential(ctx context.Context, userID uuid.UUID) (Credential, error)
	UpdateCredential(ctx context.Context, userID uuid.UUID, passwordHash string) error

	// Role operations
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error
	GetUserRoles(ctx context.Context, userID uuid.UUID) ([]string, error)

	// Refresh token operations
	CreateRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (RefreshToken, error)
	GetRefreshToken(ctx context.Context, token string) (RefreshToken, error)
	FindValidRefreshToken(ctx context.Context, token string, now time.Time) (RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID) error

	// Password reset token operations
	CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (PasswordResetToken, error)
	InvalidateUserResetTokens(ctx context.Context, userID uuid.UUID) error
	// ConsumePasswordResetToken atomically marks the token used if and only
	// if it is unused and unexpired, and returns it. ErrNotFound covers
	// unknown, expired and already-used tokens alike.
	ConsumePasswordResetToken(ctx context.Context, token string, now time.Time) (PasswordResetToken, error)

	// Login attempt operations
	RecordLoginAttempt(ctx context.Context, arg RecordLoginAttemptParams) error
	CountRecentFailedAttempts(ctx context.Context, identifier, ipAddress string, since time.Time) (int64, error)

	// Audit operations
	CreateAuditLog(ctx context.Context, arg CreateAuditLogParams) error
}
