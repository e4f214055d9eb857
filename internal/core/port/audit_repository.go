package port

import (
	"context"

	"github.com/courtbook/identity-service/internal/core/domain"
)

// AuditRepository appends security events to the audit trail.
type AuditRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error)
}
