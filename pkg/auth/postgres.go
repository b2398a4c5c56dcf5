package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same queries
// run inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository backed by Postgres via pgx
type PostgresRepository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository over a pgx connection pool
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: pool, pool: pool}
}

// WithTx runs fn with a repository bound to one transaction; any error from
// fn rolls everything back.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresRepository{db: tx, pool: r.pool}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const userColumns = `id, email, username, is_active, is_verified, created_at, updated_at, last_login`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Active, &u.Verified, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// mapUniqueViolation translates Postgres unique-constraint violations into
// the repository's duplicate sentinels; the constraints are the final
// backstop behind the in-transaction existence checks.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch {
		case strings.Contains(pgErr.ConstraintName, "email"):
			return ErrDuplicateEmail
		case strings.Contains(pgErr.ConstraintName, "username"):
			return ErrDuplicateUsername
		}
	}
	return err
}

func (r *PostgresRepository) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO auth.users (id, email, username, is_active, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+userColumns,
		uuid.New(), arg.Email, arg.Username, arg.Active, arg.Verified)

	user, err := scanUser(row)
	if err != nil {
		return User{}, mapUniqueViolation(err)
	}
	return user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM auth.users WHERE id = $1`, id))
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM auth.users WHERE email = $1`, email))
}

func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM auth.users WHERE username = $1`, username))
}

func (r *PostgresRepository) FindUserByIdentifier(ctx context.Context, identifier string) (User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM auth.users WHERE email = $1 OR username = $1`, identifier))
}

func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, when time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE auth.users SET last_login = $2, updated_at = now() WHERE id = $1`, id, when)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE auth.users SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateCredential(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auth.credentials (user_id, password_hash, created_at, updated_at)
		VALUES ($1, $2, now(), now())`,
		userID, passwordHash)
	return err
}

func (r *PostgresRepository) GetCredential(ctx context.Context, userID uuid.UUID) (Credential, error) {
	var c Credential
	err := r.db.QueryRow(ctx, `
		SELECT user_id, password_hash, created_at, updated_at
		FROM auth.credentials WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, err
	}
	return c, nil
}

func (r *PostgresRepository) UpdateCredential(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE auth.credentials SET password_hash = $2, updated_at = now()
		WHERE user_id = $1`, userID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auth.user_roles (user_id, role_id)
		SELECT $1, id FROM auth.roles WHERE name = $2
		ON CONFLICT DO NOTHING`,
		userID, roleName)
	return err
}

func (r *PostgresRepository) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.name FROM auth.roles r
		JOIN auth.user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

const refreshTokenColumns = `id, user_id, token, expires_at, revoked, created_at`

func scanRefreshToken(row pgx.Row) (RefreshToken, error) {
	var rt RefreshToken
	err := row.Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt, &rt.Revoked, &rt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return RefreshToken{}, err
	}
	return rt, nil
}

func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (RefreshToken, error) {
	return scanRefreshToken(r.db.QueryRow(ctx, `
		INSERT INTO auth.refresh_tokens (id, user_id, token, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, false, now())
		RETURNING `+refreshTokenColumns,
		uuid.New(), userID, token, expiresAt))
}

func (r *PostgresRepository) GetRefreshToken(ctx context.Context, token string) (RefreshToken, error) {
	return scanRefreshToken(r.db.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM auth.refresh_tokens WHERE token = $1`, token))
}

func (r *PostgresRepository) FindValidRefreshToken(ctx context.Context, token string, now time.Time) (RefreshToken, error) {
	return scanRefreshToken(r.db.QueryRow(ctx, `
		SELECT `+refreshTokenColumns+` FROM auth.refresh_tokens
		WHERE token = $1 AND revoked = false AND expires_at > $2`, token, now))
}

func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, token string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE auth.refresh_tokens SET revoked = true WHERE token = $1`, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE auth.refresh_tokens SET revoked = true WHERE user_id = $1 AND revoked = false`, userID)
	return err
}

func (r *PostgresRepository) CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (PasswordResetToken, error) {
	var prt PasswordResetToken
	err := r.db.QueryRow(ctx, `
		INSERT INTO auth.password_reset_tokens (id, user_id, token, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, false, now())
		RETURNING id, user_id, token, expires_at, used, created_at`,
		uuid.New(), userID, token, expiresAt).
		Scan(&prt.ID, &prt.UserID, &prt.Token, &prt.ExpiresAt, &prt.Used, &prt.CreatedAt)
	if err != nil {
		return PasswordResetToken{}, err
	}
	return prt, nil
}

func (r *PostgresRepository) InvalidateUserResetTokens(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE auth.password_reset_tokens SET used = true WHERE user_id = $1 AND used = false`, userID)
	return err
}

// ConsumePasswordResetToken is a single conditional update; the used=false
// predicate makes concurrent consumers of the same token resolve to exactly
// one winner.
func (r *PostgresRepository) ConsumePasswordResetToken(ctx context.Context, token string, now time.Time) (PasswordResetToken, error) {
	var prt PasswordResetToken
	err := r.db.QueryRow(ctx, `
		UPDATE auth.password_reset_tokens
		SET used = true
		WHERE token = $1 AND used = false AND expires_at > $2
		RETURNING id, user_id, token, expires_at, used, created_at`,
		token, now).
		Scan(&prt.ID, &prt.UserID, &prt.Token, &prt.ExpiresAt, &prt.Used, &prt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PasswordResetToken{}, ErrNotFound
	}
	if err != nil {
		return PasswordResetToken{}, err
	}
	return prt, nil
}

func (r *PostgresRepository) RecordLoginAttempt(ctx context.Context, arg RecordLoginAttemptParams) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auth.login_attempts (id, identifier, ip_address, success, attempted_at)
		VALUES ($1, $2, $3, $4, now())`,
		uuid.New(), arg.Identifier, arg.IPAddress, arg.Success)
	return err
}

func (r *PostgresRepository) CountRecentFailedAttempts(ctx context.Context, identifier, ipAddress string, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM auth.login_attempts
		WHERE success = false AND attempted_at > $3
		AND (identifier = $1 OR ip_address = $2)`,
		identifier, ipAddress, since).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresRepository) CreateAuditLog(ctx context.Context, arg CreateAuditLogParams) error {
	details, err := json.Marshal(arg.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO auth.audit_logs (id, user_id, action, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		uuid.New(), arg.UserID, arg.Action, details, arg.IPAddress, arg.UserAgent)
	return err
}
