package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/pkg/database"
	apperrors "github.com/buymeagift/giftlist/pkg/errors"
)

const (
	usersEmailKey = "users_email_key"

	userColumns         = `id, email, password_hash, is_active, created_at, updated_at`
	refreshTokenColumns = `id, user_id, token_hash, expires_at, created_at, revoked_at`
)

// UserRepository stores accounts. Emails are matched case-insensitively.
type UserRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db, now: utcNow}
}

// Create inserts u. A taken email is reported as AlreadyExists.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.PasswordHash, u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err, usersEmailKey):
		return apperrors.AlreadyExists("Email already exists")
	default:
		return fmt.Errorf("insert user %s: %w", u.Email, err)
	}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// UpdatePassword swaps the hash, which also invalidates outstanding reset tokens.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, r.now(), id,
	)
	if err != nil {
		return fmt.Errorf("update password of user %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// RefreshTokenRepository keeps hashes of issued refresh tokens so they can
// be rotated and revoked.
type RefreshTokenRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db, now: utcNow}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		userID, tokenHash, expiresAt, r.now(),
	); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	err := r.db.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash,
	).Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt, &rt.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeByUserID revokes every live token of the user, e.g. after a password reset.
func (r *RefreshTokenRepository) RevokeByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`,
		r.now(), userID,
	); err != nil {
		return fmt.Errorf("revoke refresh tokens by user %s: %w", userID, err)
	}
	return nil
}

// Revoke revokes one live token. The row check and the update are a single
// statement, so of two concurrent revocations only one succeeds; the other,
// like a revoked, expired or unknown token, gets ErrNotFound.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1
		 WHERE token_hash = $2 AND revoked_at IS NULL AND expires_at > $1`,
		r.now(), tokenHash,
	)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}


func utcNow() time.Time { return time.Now().UTC() }
