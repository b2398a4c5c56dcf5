package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vortexhq/vortex-auth/pkg/events"
	"github.com/vortexhq/vortex-auth/pkg/notification"
	"github.com/vortexhq/vortex-auth/pkg/password"
	"github.com/vortexhq/vortex-auth/pkg/ratelimit"
	"github.com/vortexhq/vortex-auth/pkg/tokengen"
)

// ServiceConfig holds the tunables of the auth service. It is immutable
// after construction; there is no ambient configuration state.
type ServiceConfig struct {
	DefaultRole      string
	ResetTokenExpiry time.Duration
	ResetTokenLength int
	ResetURL         string
}

// Service orchestrates the credential and token lifecycle: register, login,
// refresh, logout, forgot-password, reset-password and validate-token.
// Every write path runs inside one repository transaction; event publication
// and email delivery happen after commit and never fail the operation.
type Service struct {
	repo      Repository
	hasher    password.Hasher
	policy    password.Policy
	issuer    *tokengen.Issuer
	limiter   *ratelimit.Limiter
	publisher events.Publisher
	notifier  notification.Notifier
	cfg       ServiceConfig
	logger    *slog.Logger
}

// NewService wires the auth service from its collaborators
func NewService(repo Repository, hasher password.Hasher, policy password.Policy, issuer *tokengen.Issuer,
	limiter *ratelimit.Limiter, publisher events.Publisher, notifier notification.Notifier,
	cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = DefaultRole
	}
	if cfg.ResetTokenExpiry <= 0 {
		cfg.ResetTokenExpiry = time.Hour
	}
	if cfg.ResetTokenLength <= 0 {
		cfg.ResetTokenLength = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		hasher:    hasher,
		policy:    policy,
		issuer:    issuer,
		limiter:   limiter,
		publisher: publisher,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// RegisterParams holds the register request fields
type RegisterParams struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
	IPAddress       string
	UserAgent       string
}

// LoginParams holds the login request fields
type LoginParams struct {
	Identifier string
	Password   string
	IPAddress  string
	UserAgent  string
}

// LogoutParams holds the logout request fields
type LogoutParams struct {
	RefreshToken string
	IPAddress    string
	UserAgent    string
}

// ForgotPasswordParams holds the forgot-password request fields
type ForgotPasswordParams struct {
	Email     string
	IPAddress string
	UserAgent string
}

// ResetPasswordParams holds the reset-password request fields
type ResetPasswordParams struct {
	Token           string
	Password        string
	ConfirmPassword string
	IPAddress       string
	UserAgent       string
}

// LoginResult is returned by register, login and refresh
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	User         User
}

// ValidateTokenResult reports the outcome of token introspection. Absence
// of validity is data, not an error.
type ValidateTokenResult struct {
	Valid    bool
	Username string
	Email    string
	Roles    []string
	UserID   string
}

// Register creates a user with its credential and default role, issues
// tokens and emits user.created.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*LoginResult, error) {
	if params.Password != params.ConfirmPassword {
		return nil, NewError(CodePasswordMismatch, "Passwords do not match")
	}
	if err := s.policy.Validate(params.Password); err != nil {
		return nil, NewError(CodeWeakPassword, "Password does not meet requirements: "+s.policy.Requirements())
	}

	// bcrypt is deliberately slow; keep it outside the transaction.
	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var (
		user   User
		result *LoginResult
	)
	err = s.repo.WithTx(ctx, func(tx Repository) error {
		// Checked inside the transaction to narrow the duplicate race; the
		// unique constraints remain the final backstop.
		if _, err := tx.GetUserByEmail(ctx, params.Email); err == nil {
			return NewError(CodeEmailTaken, "Email already registered")
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if _, err := tx.GetUserByUsername(ctx, params.Username); err == nil {
			return NewError(CodeUsernameTaken, "Username already taken")
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		// Auto-verify policy: registration grants immediate access.
		user, err = tx.CreateUser(ctx, CreateUserParams{
			Email:    params.Email,
			Username: params.Username,
			Active:   true,
			Verified: true,
		})
		if err != nil {
			return mapDuplicateErr(err)
		}
		if err := tx.CreateCredential(ctx, user.ID, hash); err != nil {
			return err
		}
		if err := tx.AssignRole(ctx, user.ID, s.cfg.DefaultRole); err != nil {
			return err
		}
		roles, err := tx.GetUserRoles(ctx, user.ID)
		if err != nil {
			return err
		}
		user.Roles = roles

		result, err = s.issueTokens(ctx, tx, user)
		if err != nil {
			return err
		}
		return tx.CreateAuditLog(ctx, CreateAuditLogParams{
			UserID:    &user.ID,
			Action:    AuditUserCreated,
			Details:   map[string]string{"method": "registration"},
			IPAddress: params.IPAddress,
			UserAgent: params.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(events.NewUserCreated(user.ID, user.Email, user.Username, user.Roles, user.Verified, params.IPAddress, params.UserAgent))
	return result, nil
}

// Login authenticates by email or username. User-absent, inactive and
// wrong-password all fail with the same INVALID_CREDENTIALS error.
func (s *Service) Login(ctx context.Context, params LoginParams) (*LoginResult, error) {
	allowed, err := s.limiter.Allowed(ctx, params.Identifier, params.IPAddress)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if !allowed {
		s.recordAttempt(ctx, params.Identifier, params.IPAddress, false)
		return nil, errRateLimited()
	}

	user, err := s.repo.FindUserByIdentifier(ctx, params.Identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.recordAttempt(ctx, params.Identifier, params.IPAddress, false)
			return nil, errInvalidCredentials()
		}
		return nil, err
	}
	if !user.CanAuthenticate() {
		s.recordAttempt(ctx, params.Identifier, params.IPAddress, false)
		return nil, errInvalidCredentials()
	}

	cred, err := s.repo.GetCredential(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.recordAttempt(ctx, params.Identifier, params.IPAddress, false)
			return nil, errInvalidCredentials()
		}
		return nil, err
	}
	if params.Password == "" {
		s.recordAttempt(ctx, params.Identifier, params.IPAddress, false)
		return nil, errInvalidCredentials()
	}
	match, err := s.hasher.Verify(params.Password, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		s.recordAttempt(ctx, params.Identifier, params.IPAddress, false)
		return nil, errInvalidCredentials()
	}

	now := time.Now()
	var result *LoginResult
	err = s.repo.WithTx(ctx, func(tx Repository) error {
		if err := tx.RecordLoginAttempt(ctx, RecordLoginAttemptParams{
			Identifier: params.Identifier,
			IPAddress:  params.IPAddress,
			Success:    true,
		}); err != nil {
			return err
		}
		if err := tx.UpdateLastLogin(ctx, user.ID, now); err != nil {
			return err
		}
		roles, err := tx.GetUserRoles(ctx, user.ID)
		if err != nil {
			return err
		}
		user.Roles = roles
		user.LastLogin = &now

		result, err = s.issueTokens(ctx, tx, user)
		if err != nil {
			return err
		}
		return tx.CreateAuditLog(ctx, CreateAuditLogParams{
			UserID:    &user.ID,
			Action:    AuditLoginSuccess,
			Details:   map[string]string{"method": "password"},
			IPAddress: params.IPAddress,
			UserAgent: params.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(events.NewUserLoggedIn(user.ID, user.Email, user.Username, user.Roles, params.IPAddress, params.UserAgent))
	return result, nil
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is not rotated. Validity comes from the store
// lookup, not the signature, so revocation takes effect immediately.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	rt, err := s.repo.FindValidRefreshToken(ctx, refreshToken, time.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errInvalidRefreshToken()
		}
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errInvalidRefreshToken()
		}
		return nil, err
	}
	if !user.CanAuthenticate() {
		return nil, errInvalidRefreshToken()
	}

	roles, err := s.repo.GetUserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	access, _, err := s.issuer.IssueAccessToken(s.userClaims(user))
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.issuer.AccessTokenExpiry().Seconds()),
		User:         user,
	}, nil
}

// Logout revokes a refresh token. It is idempotent and never reveals
// whether the token existed.
func (s *Service) Logout(ctx context.Context, params LogoutParams) error {
	rt, err := s.repo.GetRefreshToken(ctx, params.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	user, userErr := s.repo.GetUserByID(ctx, rt.UserID)
	if userErr != nil && !errors.Is(userErr, ErrNotFound) {
		return userErr
	}

	err = s.repo.WithTx(ctx, func(tx Repository) error {
		if err := tx.RevokeRefreshToken(ctx, params.RefreshToken); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return tx.CreateAuditLog(ctx, CreateAuditLogParams{
			UserID:    &rt.UserID,
			Action:    AuditLogout,
			IPAddress: params.IPAddress,
			UserAgent: params.UserAgent,
		})
	})
	if err != nil {
		return err
	}

	if userErr == nil {
		s.publisher.Publish(events.NewUserLoggedOut(user.ID, user.Email, user.Username, params.IPAddress, params.UserAgent))
	}
	return nil
}

// ForgotPassword issues a password reset token. The external response for
// an unknown or inactive email is identical to the success path.
func (s *Service) ForgotPassword(ctx context.Context, params ForgotPasswordParams) error {
	allowed, err := s.limiter.Allowed(ctx, params.Email, params.IPAddress)
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}
	if !allowed {
		s.recordAttempt(ctx, params.Email, params.IPAddress, false)
		return errRateLimited()
	}
	s.recordAttempt(ctx, params.Email, params.IPAddress, true)

	user, err := s.repo.GetUserByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.Active {
		return nil
	}

	token, err := password.GenerateToken(s.cfg.ResetTokenLength)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	expiresAt := time.Now().Add(s.cfg.ResetTokenExpiry)

	err = s.repo.WithTx(ctx, func(tx Repository) error {
		// At most one unused, unexpired token per user: issuing a new one
		// invalidates all prior unused tokens.
		if err := tx.InvalidateUserResetTokens(ctx, user.ID); err != nil {
			return err
		}
		if _, err := tx.CreatePasswordResetToken(ctx, user.ID, token, expiresAt); err != nil {
			return err
		}
		return tx.CreateAuditLog(ctx, CreateAuditLogParams{
			UserID:    &user.ID,
			Action:    AuditPasswordResetRequested,
			IPAddress: params.IPAddress,
			UserAgent: params.UserAgent,
		})
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(events.NewPasswordResetRequested(user.ID, user.Email, user.Username, expiresAt, params.IPAddress, params.UserAgent))
	s.sendResetEmail(ctx, user, token)
	return nil
}

// ResetPassword consumes a reset token, replaces the credential hash and
// revokes every refresh token of the user, forcing re-login on all devices.
func (s *Service) ResetPassword(ctx context.Context, params ResetPasswordParams) error {
	if params.Password != params.ConfirmPassword {
		return NewError(CodePasswordMismatch, "Passwords do not match")
	}
	if err := s.policy.Validate(params.Password); err != nil {
		return NewError(CodeWeakPassword, "Password does not meet requirements: "+s.policy.Requirements())
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var user User
	err = s.repo.WithTx(ctx, func(tx Repository) error {
		// One conditional update consumes the token; concurrent attempts on
		// the same token get exactly one winner.
		prt, err := tx.ConsumePasswordResetToken(ctx, params.Token, time.Now())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return errInvalidResetToken()
			}
			return err
		}

		user, err = tx.GetUserByID(ctx, prt.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return errInvalidResetToken()
			}
			return err
		}
		if !user.Active {
			return errInvalidResetToken()
		}

		if err := tx.UpdateCredential(ctx, user.ID, hash); err != nil {
			return err
		}
		if err := tx.InvalidateUserResetTokens(ctx, user.ID); err != nil {
			return err
		}
		if err := tx.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			return err
		}
		return tx.CreateAuditLog(ctx, CreateAuditLogParams{
			UserID:    &user.ID,
			Action:    AuditPasswordReset,
			IPAddress: params.IPAddress,
			UserAgent: params.UserAgent,
		})
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(events.NewPasswordChanged(user.ID, user.Email, user.Username, params.IPAddress, params.UserAgent))
	return nil
}

// ValidateToken verifies an access token and re-checks the user row, so a
// deactivated user's token reports invalid even with a good signature.
// Only infrastructure faults return an error; every flavor of invalid
// token is just Valid=false.
func (s *Service) ValidateToken(ctx context.Context, token string) (ValidateTokenResult, error) {
	claims, err := s.issuer.ParseAccessToken(token)
	if err != nil {
		s.logger.Debug("token validation failed", "err", err)
		return ValidateTokenResult{}, nil
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ValidateTokenResult{}, nil
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ValidateTokenResult{}, nil
		}
		return ValidateTokenResult{}, err
	}
	if !user.Active {
		return ValidateTokenResult{}, nil
	}

	roles, err := s.repo.GetUserRoles(ctx, user.ID)
	if err != nil {
		return ValidateTokenResult{}, err
	}

	return ValidateTokenResult{
		Valid:    true,
		Username: user.Username,
		Email:    user.Email,
		Roles:    roles,
		UserID:   user.ID.String(),
	}, nil
}

func (s *Service) userClaims(user User) tokengen.UserClaims {
	return tokengen.UserClaims{
		UserID:   user.ID.String(),
		Email:    user.Email,
		Username: user.Username,
		Roles:    user.Roles,
		Active:   user.Active,
		Verified: user.Verified,
	}
}

// issueTokens signs an access and a refresh token and persists the refresh
// token through the given repository (usually a transaction).
func (s *Service) issueTokens(ctx context.Context, repo Repository, user User) (*LoginResult, error) {
	access, _, err := s.issuer.IssueAccessToken(s.userClaims(user))
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, refreshExpiry, err := s.issuer.IssueRefreshToken(user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	if _, err := repo.CreateRefreshToken(ctx, user.ID, refresh, refreshExpiry); err != nil {
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.issuer.AccessTokenExpiry().Seconds()),
		User:         user,
	}, nil
}

// recordAttempt appends to the attempt log; a logging failure must not turn
// an auth outcome into an infrastructure fault.
func (s *Service) recordAttempt(ctx context.Context, identifier, ipAddress string, success bool) {
	err := s.repo.RecordLoginAttempt(ctx, RecordLoginAttemptParams{
		Identifier: identifier,
		IPAddress:  ipAddress,
		Success:    success,
	})
	if err != nil {
		s.logger.Error("failed to record login attempt", "identifier", identifier, "err", err)
	}
}

func (s *Service) sendResetEmail(ctx context.Context, user User, token string) {
	link := token
	if s.cfg.ResetURL != "" {
		link = fmt.Sprintf("%s?token=%s", s.cfg.ResetURL, token)
	}
	body := fmt.Sprintf("A password reset was requested for your account.\n\n"+
		"Use the following link within %s to choose a new password:\n\n%s\n\n"+
		"If you did not request this, you can ignore this message.",
		s.cfg.ResetTokenExpiry, link)

	err := s.notifier.Send(ctx, notification.Data{
		To:      user.Email,
		Subject: "Password reset request",
		Body:    body,
	})
	if err != nil {
		s.logger.Error("failed to send password reset email", "user_id", user.ID, "err", err)
	}
}

func mapDuplicateErr(err error) error {
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return NewError(CodeEmailTaken, "Email already registered")
	case errors.Is(err, ErrDuplicateUsername):
		return NewError(CodeUsernameTaken, "Username already taken")
	}
	return err
}
