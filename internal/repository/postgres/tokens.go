package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/core/port"
	"github.com/courtbook/identity-service/internal/repository"
)

// TokenRepository implements port.TokenRepository using PostgreSQL tables.
// Revocation and consumption are conditional updates, so a token presented
// twice concurrently is burned exactly once.
type TokenRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	repo := &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// CreateRefreshToken inserts a new refresh token record.
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.builder.Insert("auth.refresh_tokens").
		Columns(
			"id",
			"user_id",
			"token_hash",
			"ip",
			"user_agent",
			"created_at",
			"expires_at",
			"revoked_at",
		).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.IP,
			token.UserAgent,
			token.CreatedAt,
			token.ExpiresAt,
			token.RevokedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetRefreshTokenByHash retrieves a refresh token by its hashed value.
func (r *TokenRepository) GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"user_id",
		"token_hash",
		"ip",
		"user_agent",
		"created_at",
		"expires_at",
		"revoked_at",
	).
		From("auth.refresh_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var token domain.RefreshToken
	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.IP,
		&token.UserAgent,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.RevokedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	return &token, nil
}

// RevokeRefreshToken revokes the token if it is still active and reports
// whether this call won the race.
func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) (bool, error) {
	stmt, args, err := r.builder.Update("auth.refresh_tokens").
		Set("revoked_at", revokedAt).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"revoked_at": nil}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// RevokeRefreshTokensForUser revokes every active refresh token of the user
// and returns how many were revoked.
func (r *TokenRepository) RevokeRefreshTokensForUser(ctx context.Context, userID string, revokedAt time.Time) (int, error) {
	stmt, args, err := r.builder.Update("auth.refresh_tokens").
		Set("revoked_at", revokedAt).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"revoked_at": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke refresh tokens sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens for user: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// CreatePasswordReset inserts a new password reset token record.
func (r *TokenRepository) CreatePasswordReset(ctx context.Context, token domain.PasswordResetToken) error {
	stmt, args, err := r.builder.Insert("auth.password_reset_tokens").
		Columns(
			"id",
			"user_id",
			"token_hash",
			"ip",
			"user_agent",
			"created_at",
			"expires_at",
			"used_at",
		).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.IP,
			token.UserAgent,
			token.CreatedAt,
			token.ExpiresAt,
			token.UsedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password reset token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password reset token: %w", err)
	}

	return nil
}

// GetPasswordResetByHash retrieves a password reset token by its hashed value.
func (r *TokenRepository) GetPasswordResetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"user_id",
		"token_hash",
		"ip",
		"user_agent",
		"created_at",
		"expires_at",
		"used_at",
	).
		From("auth.password_reset_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password reset token sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var token domain.PasswordResetToken
	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.IP,
		&token.UserAgent,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.UsedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan password reset token: %w", err)
	}

	return &token, nil
}

// ConsumePasswordReset marks the token used if it has not been used yet and
// reports whether this call consumed it.
func (r *TokenRepository) ConsumePasswordReset(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	stmt, args, err := r.builder.Update("auth.password_reset_tokens").
		Set("used_at", usedAt).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"used_at": nil}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build consume password reset sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("consume password reset: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// InvalidatePasswordResetsForUser consumes every outstanding reset token of
// the user so the most recently issued link is the only valid one.
func (r *TokenRepository) InvalidatePasswordResetsForUser(ctx context.Context, userID string, invalidatedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.password_reset_tokens").
		Set("used_at", invalidatedAt).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"used_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate password resets sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("invalidate password resets: %w", err)
	}

	return nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
