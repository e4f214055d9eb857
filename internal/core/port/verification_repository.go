package port

import (
	"context"
	"time"

	"github.com/courtbook/identity-service/internal/core/domain"
)

// VerificationCodeRepository manages one-time passcode challenges.
type VerificationCodeRepository interface {
	Create(ctx context.Context, code domain.VerificationCode) error
	// GetLatestByUser returns the newest unconsumed code regardless of
	// expiry, so callers can tell an expired challenge from a missing one.
	GetLatestByUser(ctx context.Context, userID string) (*domain.VerificationCode, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Consume(ctx context.Context, id string, consumedAt time.Time) error
	InvalidateActive(ctx context.Context, userID string, invalidatedAt time.Time) error
}
