// Package auth implements the credential and token lifecycle: registration,
// login, token refresh, logout, password reset and token introspection.
//
// # Overview
//
// The auth package provides:
//   - Registration with password policy enforcement and a default role
//   - Login by email or username with a single collapsed failure error
//   - HS256 access tokens plus store-backed, revocable refresh tokens
//   - Single-use password reset tokens delivered over email
//   - Sliding-window rate limiting of login and forgot-password attempts
//   - Transactional audit logging and async domain event publication
//   - Repository pattern with Postgres (pgx) and in-memory implementations
//
// # Basic Usage
//
//	import "github.com/vortexhq/vortex-auth/pkg/auth"
//
//	repo := auth.NewPostgresRepository(pool)
//	service := auth.NewService(repo, hasher, policy, issuer, limiter,
//		publisher, notifier, auth.ServiceConfig{}, logger)
//
//	result, err := service.Login(ctx, auth.LoginParams{
//		Identifier: "user@example.com",
//		Password:   "secret",
//	})
//	if err != nil {
//		// auth.AsError distinguishes expected failures from faults
//	}
//
// # Error Handling
//
// Expected failures come back as *auth.Error with a stable Code; the
// message for INVALID_CREDENTIALS is identical for unknown users, inactive
// users and wrong passwords. Infrastructure faults are plain wrapped errors.
//
//	if authErr, ok := auth.AsError(err); ok {
//		// map authErr.Code onto an HTTP status
//	}
//
// # Password Reset Flow
//
//	// Step 1: issue a token (response never reveals whether email exists)
//	err := service.ForgotPassword(ctx, auth.ForgotPasswordParams{Email: email})
//
//	// Step 2: consume the token; all refresh tokens are revoked
//	err = service.ResetPassword(ctx, auth.ResetPasswordParams{
//		Token:           token,
//		Password:        newPassword,
//		ConfirmPassword: newPassword,
//	})
//
// # HTTP Surface
//
// Handle mounts the REST endpoints on a chi router:
//
//	handle := auth.NewHandle(service, logger)
//	r.Route("/api/auth", handle.Routes)
//
// # Related Packages
//
//   - pkg/password - Hashing, policy checks and reset token generation
//   - pkg/tokengen - JWT signing and validation
//   - pkg/ratelimit - Failed-attempt sliding window
//   - pkg/events - Async domain event publishing
//   - pkg/notification - Email delivery
package auth
