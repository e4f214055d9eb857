package port

import (
	"context"

	"github.com/courtbook/identity-service/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishUserVerified(ctx context.Context, event domain.UserVerifiedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
}
