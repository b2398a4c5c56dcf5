package events

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a domain event. The set is closed; consumers can switch
// over it exhaustively.
type Kind string

const (
	UserCreated            Kind = "user.created"
	UserLoggedIn           Kind = "user.logged_in"
	UserLoggedOut          Kind = "user.logged_out"
	PasswordChanged        Kind = "password.changed"
	PasswordResetRequested Kind = "password.reset_requested"
)

// Event is the common envelope for all auth events. Per-kind fields travel
// in Detail; constructors below enumerate the closed set of kinds.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Kind       Kind              `json:"kind"`
	OccurredAt time.Time         `json:"occurred_at"`
	UserID     uuid.UUID         `json:"user_id"`
	Email      string            `json:"email"`
	Username   string            `json:"username"`
	Detail     map[string]string `json:"detail,omitempty"`
}

func newEvent(kind Kind, userID uuid.UUID, email, username string, detail map[string]string) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		UserID:     userID,
		Email:      email,
		Username:   username,
		Detail:     detail,
	}
}

// NewUserCreated is emitted after a successful registration
func NewUserCreated(userID uuid.UUID, email, username string, roles []string, verified bool, ipAddress, userAgent string) Event {
	verifiedStr := "false"
	if verified {
		verifiedStr = "true"
	}
	return newEvent(UserCreated, userID, email, username, map[string]string{
		"roles":      strings.Join(roles, ","),
		"verified":   verifiedStr,
		"method":     "registration",
		"ip_address": ipAddress,
		"user_agent": userAgent,
	})
}

// NewUserLoggedIn is emitted after a successful login
func NewUserLoggedIn(userID uuid.UUID, email, username string, roles []string, ipAddress, userAgent string) Event {
	return newEvent(UserLoggedIn, userID, email, username, map[string]string{
		"roles":      strings.Join(roles, ","),
		"method":     "password",
		"ip_address": ipAddress,
		"user_agent": userAgent,
	})
}

// NewUserLoggedOut is emitted after a refresh token is revoked by logout
func NewUserLoggedOut(userID uuid.UUID, email, username string, ipAddress, userAgent string) Event {
	return newEvent(UserLoggedOut, userID, email, username, map[string]string{
		"reason":     "user_initiated",
		"ip_address": ipAddress,
		"user_agent": userAgent,
	})
}

// NewPasswordChanged is emitted after a successful password reset
func NewPasswordChanged(userID uuid.UUID, email, username, ipAddress, userAgent string) Event {
	return newEvent(PasswordChanged, userID, email, username, map[string]string{
		"method":     "reset_token",
		"ip_address": ipAddress,
		"user_agent": userAgent,
	})
}

// NewPasswordResetRequested is emitted after a reset token is issued
func NewPasswordResetRequested(userID uuid.UUID, email, username string, expiresAt time.Time, ipAddress, userAgent string) Event {
	return newEvent(PasswordResetRequested, userID, email, username, map[string]string{
		"delivery":   "email",
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
		"ip_address": ipAddress,
		"user_agent": userAgent,
	})
}
