package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage. It backs
// the test suite and local development without a database.
type InMemoryRepository struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	users           map[uuid.UUID]User
	usersByEmail    map[string]uuid.UUID
	usersByUsername map[string]uuid.UUID
	credentials     map[uuid.UUID]Credential
	userRoles       map[uuid.UUID][]string
	refreshTokens   map[string]RefreshToken
	resetTokens     map[string]PasswordResetToken
	attempts        []LoginAttempt
	auditLogs       []AuditLog
}

// NewInMemoryRepository creates an empty in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:           make(map[uuid.UUID]User),
		usersByEmail:    make(map[string]uuid.UUID),
		usersByUsername: make(map[string]uuid.UUID),
		credentials:     make(map[uuid.UUID]Credential),
		userRoles:       make(map[uuid.UUID][]string),
		refreshTokens:   make(map[string]RefreshToken),
		resetTokens:     make(map[string]PasswordResetToken),
	}
}

// WithTx serializes transactions against each other. Rollback is not
// simulated; each individual operation is still atomic under the data lock,
// which is what the single-use and uniqueness tests depend on.
func (r *InMemoryRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(r)
}

func (r *InMemoryRepository) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.usersByEmail[arg.Email]; exists {
		return User{}, ErrDuplicateEmail
	}
	if _, exists := r.usersByUsername[arg.Username]; exists {
		return User{}, ErrDuplicateUsername
	}

	now := time.Now()
	user := User{
		ID:        uuid.New(),
		Email:     arg.Email,
		Username:  arg.Username,
		Active:    arg.Active,
		Verified:  arg.Verified,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.users[user.ID] = user
	r.usersByEmail[user.Email] = user.ID
	r.usersByUsername[user.Username] = user.ID
	return user, nil
}

func (r *InMemoryRepository) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *InMemoryRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userByEmailLocked(email)
}

func (r *InMemoryRepository) userByEmailLocked(email string) (User, error) {
	id, ok := r.usersByEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.users[id], nil
}

func (r *InMemoryRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userByUsernameLocked(username)
}

func (r *InMemoryRepository) userByUsernameLocked(username string) (User, error) {
	id, ok := r.usersByUsername[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.users[id], nil
}

func (r *InMemoryRepository) FindUserByIdentifier(ctx context.Context, identifier string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if user, err := r.userByEmailLocked(identifier); err == nil {
		return user, nil
	}
	return r.userByUsernameLocked(identifier)
}

func (r *InMemoryRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.LastLogin = &when
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return nil
}

func (r *InMemoryRepository) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.Active = active
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return nil
}

func (r *InMemoryRepository) CreateCredential(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.credentials[userID] = Credential{
		UserID:       userID,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return nil
}

func (r *InMemoryRepository) GetCredential(ctx context.Context, userID uuid.UUID) (Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.credentials[userID]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

func (r *InMemoryRepository) UpdateCredential(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.credentials[userID]
	if !ok {
		return ErrNotFound
	}
	cred.PasswordHash = passwordHash
	cred.UpdatedAt = time.Now()
	r.credentials[userID] = cred
	return nil
}

func (r *InMemoryRepository) AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.userRoles[userID] {
		if existing == roleName {
			return nil
		}
	}
	r.userRoles[userID] = append(r.userRoles[userID], roleName)
	return nil
}

func (r *InMemoryRepository) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]string, len(r.userRoles[userID]))
	copy(roles, r.userRoles[userID])
	return roles, nil
}

func (r *InMemoryRepository) CreateRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt := RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	r.refreshTokens[token] = rt
	return rt, nil
}

func (r *InMemoryRepository) GetRefreshToken(ctx context.Context, token string) (RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.refreshTokens[token]
	if !ok {
		return RefreshToken{}, ErrNotFound
	}
	return rt, nil
}

func (r *InMemoryRepository) FindValidRefreshToken(ctx context.Context, token string, now time.Time) (RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.refreshTokens[token]
	if !ok || rt.Revoked || !rt.ExpiresAt.After(now) {
		return RefreshToken{}, ErrNotFound
	}
	return rt, nil
}

func (r *InMemoryRepository) RevokeRefreshToken(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.refreshTokens[token]
	if !ok {
		return ErrNotFound
	}
	rt.Revoked = true
	r.refreshTokens[token] = rt
	return nil
}

func (r *InMemoryRepository) RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, rt := range r.refreshTokens {
		if rt.UserID == userID && !rt.Revoked {
			rt.Revoked = true
			r.refreshTokens[token] = rt
		}
	}
	return nil
}

func (r *InMemoryRepository) CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prt := PasswordResetToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	r.resetTokens[token] = prt
	return prt, nil
}

func (r *InMemoryRepository) InvalidateUserResetTokens(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, prt := range r.resetTokens {
		if prt.UserID == userID && !prt.Used {
			prt.Used = true
			r.resetTokens[token] = prt
		}
	}
	return nil
}

// ConsumePasswordResetToken performs the check-and-set under the write lock
// so that concurrent callers observe exactly one transition false -> true.
func (r *InMemoryRepository) ConsumePasswordResetToken(ctx context.Context, token string, now time.Time) (PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prt, ok := r.resetTokens[token]
	if !ok || prt.Used || !prt.ExpiresAt.After(now) {
		return PasswordResetToken{}, ErrNotFound
	}
	prt.Used = true
	r.resetTokens[token] = prt
	return prt, nil
}

func (r *InMemoryRepository) RecordLoginAttempt(ctx context.Context, arg RecordLoginAttemptParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts = append(r.attempts, LoginAttempt{
		ID:          uuid.New(),
		Identifier:  arg.Identifier,
		IPAddress:   arg.IPAddress,
		Success:     arg.Success,
		AttemptedAt: time.Now(),
	})
	return nil
}

func (r *InMemoryRepository) CountRecentFailedAttempts(ctx context.Context, identifier, ipAddress string, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, attempt := range r.attempts {
		if attempt.Success || !attempt.AttemptedAt.After(since) {
			continue
		}
		if attempt.Identifier == identifier || attempt.IPAddress == ipAddress {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) CreateAuditLog(ctx context.Context, arg CreateAuditLogParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.auditLogs = append(r.auditLogs, AuditLog{
		ID:        uuid.New(),
		UserID:    arg.UserID,
		Action:    arg.Action,
		Details:   arg.Details,
		IPAddress: arg.IPAddress,
		UserAgent: arg.UserAgent,
		CreatedAt: time.Now(),
	})
	return nil
}

// AuditLogs returns a copy of the recorded audit rows, newest last
func (r *InMemoryRepository) AuditLogs() []AuditLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := make([]AuditLog, len(r.auditLogs))
	copy(logs, r.auditLogs)
	return logs
}

// RefreshTokensForUser returns all persisted refresh tokens for a user
func (r *InMemoryRepository) RefreshTokensForUser(userID uuid.UUID) []RefreshToken {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []RefreshToken
	for _, rt := range r.refreshTokens {
		if rt.UserID == userID {
			out = append(out, rt)
		}
	}
	return out
}

// ResetTokensForUser returns all persisted reset tokens for a user
func (r *InMemoryRepository) ResetTokensForUser(userID uuid.UUID) []PasswordResetToken {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []PasswordResetToken
	for _, prt := range r.resetTokens {
		if prt.UserID == userID {
			out = append(out, prt)
		}
	}
	return out
}
