package auth

import (
	"errors"
	"fmt"
)

// Code identifies an expected, user-facing failure. Codes are stable API;
// the messages attached to them are generic on purpose so that different
// internal causes stay indistinguishable to clients.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodePasswordMismatch    Code = "PASSWORD_MISMATCH"
	CodeWeakPassword        Code = "WEAK_PASSWORD"
	CodeEmailTaken          Code = "EMAIL_TAKEN"
	CodeUsernameTaken       Code = "USERNAME_TAKEN"
	CodeInvalidCredentials  Code = "INVALID_CREDENTIALS"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInvalidRefreshToken Code = "INVALID_REFRESH_TOKEN"
	CodeInvalidResetToken   Code = "INVALID_OR_EXPIRED_TOKEN"
)

// Error is an expected outcome of an auth operation. Infrastructure faults
// (store unreachable, signing failure) are plain wrapped errors instead and
// roll back the surrounding transaction.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a typed auth error
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsError unwraps err into an *Error if it is one
func AsError(err error) (*Error, bool) {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// errInvalidCredentials collapses "user missing", "not active or verified"
// and "wrong password" into one byte-identical response to prevent account
// enumeration.
func errInvalidCredentials() *Error {
	return NewError(CodeInvalidCredentials, "Invalid credentials")
}

func errInvalidRefreshToken() *Error {
	return NewError(CodeInvalidRefreshToken, "Invalid or expired refresh token")
}

// errInvalidResetToken collapses malformed, unknown, expired and already
// used reset tokens into one response.
func errInvalidResetToken() *Error {
	return NewError(CodeInvalidResetToken, "Invalid or expired reset token")
}

func errRateLimited() *Error {
	return NewError(CodeRateLimited, "Too many failed attempts. Please try again later.")
}
