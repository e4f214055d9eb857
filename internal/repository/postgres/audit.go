package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/core/port"
)

// AuditRepository implements port.AuditRepository as an append-only PostgreSQL table.
type AuditRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	repo := &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *AuditRepository) WithTx(tx pgx.Tx) *AuditRepository {
	if tx == nil {
		return r
	}
	return &AuditRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Append writes one audit event.
func (r *AuditRepository) Append(ctx context.Context, event domain.AuditEvent) error {
	metadata, err := marshalMetadata(event.Metadata)
	if err != nil {
		return fmt.Errorf("prepare audit metadata: %w", err)
	}

	stmt, args, err := r.builder.Insert("auth.audit_events").
		Columns(
			"id",
			"user_id",
			"event_type",
			"email",
			"phone",
			"ip",
			"user_agent",
			"metadata",
			"created_at",
		).
		Values(
			event.ID,
			event.UserID,
			event.EventType,
			event.Email,
			event.Phone,
			event.IP,
			event.UserAgent,
			metadata,
			event.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}

// ListByUser returns the most recent audit events for the user, newest first.
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	stmt, args, err := r.builder.Select(
		"id",
		"user_id",
		"event_type",
		"email",
		"phone",
		"ip",
		"user_agent",
		"metadata",
		"created_at",
	).
		From("auth.audit_events").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select audit events sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			event    domain.AuditEvent
			metadata []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.UserID,
			&event.EventType,
			&event.Email,
			&event.Phone,
			&event.IP,
			&event.UserAgent,
			&metadata,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}

var _ port.AuditRepository = (*AuditRepository)(nil)
