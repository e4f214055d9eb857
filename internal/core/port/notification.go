package port

import (
	"context"

	"github.com/courtbook/identity-service/internal/core/domain"
)

// NotificationGateway delivers transactional messages to end users.
type NotificationGateway interface {
	SendOTP(ctx context.Context, channel domain.OTPChannel, destination string, code string) error
	SendPasswordReset(ctx context.Context, email string, resetLink string) error
	SendPasswordChanged(ctx context.Context, email string) error
}
