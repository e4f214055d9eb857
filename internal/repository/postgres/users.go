package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
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

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	repo := &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

var userColumns = []string{
	"id",
	"email",
	"phone",
	"password_hash",
	"full_name",
	"status",
	"is_active",
	"is_locked",
	"failed_login_count",
	"locked_at",
	"auth_providers",
	"registered_at",
	"last_login",
}

// Create inserts a new user row. Unique-constraint violations on email or
// phone are translated to repository.ErrDuplicateEmail / ErrDuplicatePhone.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	var phoneValue any
	if user.Phone != nil && *user.Phone != "" {
		phoneValue = *user.Phone
	}

	providers, err := marshalProviders(user.AuthProviders)
	if err != nil {
		return fmt.Errorf("prepare auth providers: %w", err)
	}

	stmt, args, err := r.builder.Insert("auth.users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Email,
			phoneValue,
			user.PasswordHash,
			user.FullName,
			user.Status,
			user.IsActive,
			user.IsLocked,
			user.FailedLoginCount,
			user.LockedAt,
			providers,
			user.RegisteredAt,
			user.LastLogin,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", translateUserConstraint(err))
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email})
}

// GetByPhone retrieves a user by phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"phone": phone})
}

// GetByEmailOrPhone retrieves a user owning either the email or the phone
// number. When both match different rows the email owner wins, so duplicate
// reporting stays deterministic.
func (r *UserRepository) GetByEmailOrPhone(ctx context.Context, email string, phone *string) (*domain.User, error) {
	predicate := squirrel.Or{squirrel.Eq{"email": email}}
	if phone != nil && *phone != "" {
		predicate = append(predicate, squirrel.Eq{"phone": *phone})
	}

	stmt, args, err := r.builder.
		Select(userColumns...).
		From("auth.users").
		Where(predicate).
		OrderByClause("(email = ?) DESC", email).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return user, nil
}

// GetByProvider retrieves the user linked to the given external provider identity.
func (r *UserRepository) GetByProvider(ctx context.Context, provider domain.AuthProvider, providerID string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Expr(
		"auth_providers -> ? ->> 'provider_id' = ?", string(provider), providerID,
	))
}

func (r *UserRepository) getOne(ctx context.Context, predicate any) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("auth.users").
		Where(predicate).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user         domain.User
		phone        sql.NullString
		passwordHash sql.NullString
		providers    []byte
	)

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&phone,
		&passwordHash,
		&user.FullName,
		&user.Status,
		&user.IsActive,
		&user.IsLocked,
		&user.FailedLoginCount,
		&user.LockedAt,
		&providers,
		&user.RegisteredAt,
		&user.LastLogin,
	); err != nil {
		return nil, err
	}

	if phone.Valid {
		val := phone.String
		user.Phone = &val
	}
	if passwordHash.Valid {
		val := passwordHash.String
		user.PasswordHash = &val
	}

	if len(providers) > 0 {
		if err := json.Unmarshal(providers, &user.AuthProviders); err != nil {
			return nil, fmt.Errorf("decode auth providers: %w", err)
		}
	}

	return &user, nil
}

// UpdateStatus transitions the account status.
func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("status", status).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user status sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePassword replaces the stored hash and clears the lockout state.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("password_hash", passwordHash).
		Set("failed_login_count", 0).
		Set("is_locked", false).
		Set("locked_at", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateLoginState persists the failed-login counter, lock flag, and last login timestamp.
func (r *UserRepository) UpdateLoginState(ctx context.Context, id string, failedCount int, locked bool, lockedAt *time.Time, lastLogin *time.Time) error {
	update := r.builder.Update("auth.users").
		Set("failed_login_count", failedCount).
		Set("is_locked", locked).
		Set("locked_at", lockedAt).
		Where(squirrel.Eq{"id": id})
	if lastLogin != nil {
		update = update.Set("last_login", *lastLogin)
	}

	stmt, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build update login state sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update login state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// LinkProvider attaches or replaces an external provider identity on the user.
func (r *UserRepository) LinkProvider(ctx context.Context, id string, provider domain.AuthProvider, link domain.ProviderLink) error {
	payload, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode provider link: %w", err)
	}

	stmt, args, err := r.builder.Update("auth.users").
		Set("auth_providers", squirrel.Expr(
			"jsonb_set(coalesce(auth_providers, '{}'::jsonb), array[?], ?::jsonb)",
			string(provider), payload,
		)).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build link provider sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("link provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func marshalProviders(providers map[domain.AuthProvider]domain.ProviderLink) ([]byte, error) {
	if len(providers) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(providers)
}

var _ port.UserRepository = (*UserRepository)(nil)
