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

// VerificationCodeRepository implements port.VerificationCodeRepository using PostgreSQL.
// Single-use and attempt-count guarantees come from conditional updates on
// consumed_at, so concurrent submissions of the same code settle in the database.
type VerificationCodeRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewVerificationCodeRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewVerificationCodeRepository(exec pgExecutor) *VerificationCodeRepository {
	repo := &VerificationCodeRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *VerificationCodeRepository) WithTx(tx pgx.Tx) *VerificationCodeRepository {
	if tx == nil {
		return r
	}
	return &VerificationCodeRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new verification code row.
func (r *VerificationCodeRepository) Create(ctx context.Context, code domain.VerificationCode) error {
	stmt, args, err := r.builder.Insert("auth.verification_codes").
		Columns(
			"id",
			"user_id",
			"code",
			"channel",
			"attempts",
			"max_attempts",
			"created_at",
			"expires_at",
			"consumed_at",
		).
		Values(
			code.ID,
			code.UserID,
			code.Code,
			code.Channel,
			code.Attempts,
			code.MaxAttempts,
			code.CreatedAt,
			code.ExpiresAt,
			code.ConsumedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert verification code sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert verification code: %w", err)
	}

	return nil
}

// GetLatestByUser returns the most recent unconsumed code for the user,
// expired or not.
func (r *VerificationCodeRepository) GetLatestByUser(ctx context.Context, userID string) (*domain.VerificationCode, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"user_id",
		"code",
		"channel",
		"attempts",
		"max_attempts",
		"created_at",
		"expires_at",
		"consumed_at",
	).
		From("auth.verification_codes").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"consumed_at": nil}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select verification code sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var code domain.VerificationCode
	if err := row.Scan(
		&code.ID,
		&code.UserID,
		&code.Code,
		&code.Channel,
		&code.Attempts,
		&code.MaxAttempts,
		&code.CreatedAt,
		&code.ExpiresAt,
		&code.ConsumedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification code: %w", err)
	}

	return &code, nil
}

// IncrementAttempts bumps the attempt counter for an unconsumed code and
// returns the new value.
func (r *VerificationCodeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	stmt, args, err := r.builder.Update("auth.verification_codes").
		Set("attempts", squirrel.Expr("attempts + 1")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"consumed_at": nil}).
		Suffix("RETURNING attempts").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build increment attempts sql: %w", err)
	}

	var attempts int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment attempts: %w", err)
	}

	return attempts, nil
}

// Consume marks the code as used. Only the first caller succeeds; later
// callers observe repository.ErrNotFound.
func (r *VerificationCodeRepository) Consume(ctx context.Context, id string, consumedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.verification_codes").
		Set("consumed_at", consumedAt).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"consumed_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume verification code sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// InvalidateActive consumes every outstanding code for the user so a freshly
// issued code is the only redeemable one.
func (r *VerificationCodeRepository) InvalidateActive(ctx context.Context, userID string, invalidatedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.verification_codes").
		Set("consumed_at", invalidatedAt).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"consumed_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate verification codes sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("invalidate verification codes: %w", err)
	}

	return nil
}

var _ port.VerificationCodeRepository = (*VerificationCodeRepository)(nil)
