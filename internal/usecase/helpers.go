package usecase

import (
	"context"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/core/port"
)

func stringPtr(value string) *string {
	return &value
}

func stringPtrOrNil(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return stringPtr(trimmed)
}

// recordAudit appends an audit event on a best-effort basis. The audit trail
// must never fail the operation it describes.
func recordAudit(ctx context.Context, audit port.AuditRepository, logger *zap.Logger, event domain.AuditEvent) {
	if audit == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := audit.Append(ctx, event); err != nil && logger != nil {
		logger.Warn("audit append failed",
			zap.String("event_type", string(event.EventType)),
			zap.Error(err),
		)
	}
}
