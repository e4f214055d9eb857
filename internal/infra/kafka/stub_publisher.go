package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs auth.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"email":         event.Email,
		"phone":         event.Phone,
		"full_name":     event.FullName,
		"status":        event.Status,
		"registered_at": event.RegisteredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("user.registered", event.UserID, event.RegisteredAt, payload)
	return nil
}

// PublishUserVerified logs auth.user.verified events.
func (p *StubPublisher) PublishUserVerified(_ context.Context, event domain.UserVerifiedEvent) error {
	payload := map[string]any{
		"user_id":     event.UserID,
		"channel":     event.Channel,
		"verified_at": event.VerifiedAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("user.verified", event.UserID, event.VerifiedAt, payload)
	return nil
}

// PublishPasswordChanged logs auth.user.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"changed_at": event.ChangedAt,
		"reason":     event.Reason,
		"metadata":   event.Metadata,
	}
	p.logEvent("user.password.changed", event.UserID, event.ChangedAt, payload)
	return nil
}

// PublishPasswordResetRequested logs auth.user.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := map[string]any{
		"user_id":            event.UserID,
		"requested_at":       event.RequestedAt,
		"masked_destination": event.MaskedDestination,
		"expires_at":         event.ExpiresAt,
		"ip_address":         event.IPAddress,
		"metadata":           event.Metadata,
	}
	p.logEvent("user.password.reset_requested", event.UserID, event.RequestedAt, payload)
	return nil
}

// PublishAccountLocked logs auth.user.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"user_id":         event.UserID,
		"locked_at":       event.LockedAt,
		"failed_attempts": event.FailedAttempts,
		"ip_address":      event.IPAddress,
		"metadata":        event.Metadata,
	}
	p.logEvent("user.account.locked", event.UserID, event.LockedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
