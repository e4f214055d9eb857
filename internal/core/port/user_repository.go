package port

import (
	"context"
	"time"

	"github.com/courtbook/identity-service/internal/core/domain"
)

// UserRepository exposes persistence behavior for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetByEmailOrPhone(ctx context.Context, email string, phone *string) (*domain.User, error)
	GetByProvider(ctx context.Context, provider domain.AuthProvider, providerID string) (*domain.User, error)
	UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	UpdateLoginState(ctx context.Context, id string, failedCount int, locked bool, lockedAt *time.Time, lastLogin *time.Time) error
	LinkProvider(ctx context.Context, id string, provider domain.AuthProvider, link domain.ProviderLink) error
}
