package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/core/port"
	"github.com/courtbook/identity-service/internal/repository"
)

// UserService handles profile reads for authenticated users.
type UserService struct {
	users port.UserRepository
	audit port.AuditRepository
}

// NewUserService constructs UserService.
func NewUserService(users port.UserRepository, audit port.AuditRepository) *UserService {
	return &UserService{users: users, audit: audit}
}

// GetProfile returns the sanitized account record for the given user.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	sanitized := user.Sanitized()
	return &sanitized, nil
}

// ListAuditEvents returns recent security events for the given user, newest first.
func (s *UserService) ListAuditEvents(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if s.audit == nil {
		return nil, nil
	}

	events, err := s.audit.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}

	return events, nil
}
