package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/repository"
)

func TestVerificationCodeRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVerificationCodeRepository(mock)

	createdAt := time.Now().UTC()
	code := domain.VerificationCode{
		ID:          "code-1",
		UserID:      "user-1",
		Code:        "042517",
		Channel:     domain.OTPChannelEmail,
		MaxAttempts: 5,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(10 * time.Minute),
	}

	mock.ExpectExec(`INSERT INTO auth\.verification_codes`).
		WithArgs(
			code.ID,
			code.UserID,
			code.Code,
			code.Channel,
			code.Attempts,
			code.MaxAttempts,
			code.CreatedAt,
			code.ExpiresAt,
			nil,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), code); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVerificationCodeRepository_GetLatestByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVerificationCodeRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "code", "channel", "attempts", "max_attempts", "created_at", "expires_at", "consumed_at",
	}).AddRow(
		"code-1", "user-1", "042517", "email", 1, 5, now.Add(-time.Minute), now.Add(9*time.Minute), nil,
	)

	mock.ExpectQuery(`SELECT .*FROM auth\.verification_codes`).
		WithArgs("user-1").
		WillReturnRows(rows)

	code, err := repo.GetLatestByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetLatestByUser returned error: %v", err)
	}
	if code.Code != "042517" {
		t.Fatalf("expected stored code, got %s", code.Code)
	}
	if !code.Active(now) {
		t.Fatal("expected code to be active")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVerificationCodeRepository_GetLatestByUserNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVerificationCodeRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM auth\.verification_codes`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "code", "channel", "attempts", "max_attempts", "created_at", "expires_at", "consumed_at",
		}))

	if _, err := repo.GetLatestByUser(context.Background(), "user-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerificationCodeRepository_IncrementAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVerificationCodeRepository(mock)

	rows := pgxmock.NewRows([]string{"attempts"}).AddRow(3)
	mock.ExpectQuery(`UPDATE auth\.verification_codes`).
		WithArgs("code-1").
		WillReturnRows(rows)

	attempts, err := repo.IncrementAttempts(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("IncrementAttempts returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVerificationCodeRepository_ConsumeOnlyOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVerificationCodeRepository(mock)

	consumedAt := time.Now().UTC()

	mock.ExpectExec(`UPDATE auth\.verification_codes`).
		WithArgs(consumedAt, "code-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE auth\.verification_codes`).
		WithArgs(consumedAt, "code-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Consume(context.Background(), "code-1", consumedAt); err != nil {
		t.Fatalf("first Consume returned error: %v", err)
	}
	if err := repo.Consume(context.Background(), "code-1", consumedAt); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second consume, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
