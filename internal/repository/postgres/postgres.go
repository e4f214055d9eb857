package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/courtbook/identity-service/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolationCode = "23505"

// translateUserConstraint maps unique-constraint violations on the users table
// to sentinel errors. The database is the authority on duplicates, so
// concurrent registrations racing past an application-level check still
// resolve to exactly one winner.
func translateUserConstraint(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return err
	}

	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return repository.ErrDuplicateEmail
	case strings.Contains(pgErr.ConstraintName, "phone"):
		return repository.ErrDuplicatePhone
	default:
		return err
	}
}
