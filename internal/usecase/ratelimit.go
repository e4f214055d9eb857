package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/courtbook/identity-service/internal/core/port"
)

// RateLimitExceededError reports that a sliding-window limit was hit and when
// the caller may retry.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

// Error implements error for RateLimitExceededError.
func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

// RateLimitService enforces sliding-window limits over a shared attempt store.
// Store failures are logged and the request is allowed through: the limiter
// protects against abuse, it must not take down login or registration when
// Redis is unreachable.
type RateLimitService struct {
	store  port.RateLimitStore
	logger *zap.Logger
}

// NewRateLimitService constructs a RateLimitService.
func NewRateLimitService(store port.RateLimitStore, logger *zap.Logger) *RateLimitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitService{store: store, logger: logger}
}

// Check enforces the limit for scope and identifier at the given instant. A
// passing check records the attempt; a failing one returns
// *RateLimitExceededError carrying the earliest retry time.
func (s *RateLimitService) Check(ctx context.Context, scope, identifier string, window time.Duration, limit int, now time.Time) error {
	if s == nil || s.store == nil || limit <= 0 || window <= 0 {
		return nil
	}

	identifierKey := normalizeIdentifierKey(identifier)
	if identifierKey == "" {
		return nil
	}

	storageKey := fmt.Sprintf("%s:%s", scope, identifierKey)

	if err := s.store.TrimWindow(ctx, storageKey, window, now); err != nil {
		s.logger.Warn("rate limit trim failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	count, err := s.store.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		s.logger.Warn("rate limit count failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	if count >= limit {
		retryAfter := time.Duration(0)
		if oldest, ok, err := s.store.OldestAttempt(ctx, storageKey, window, now); err == nil && ok {
			reset := oldest.Add(window)
			if reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			s.logger.Warn("rate limit oldest lookup failed", zap.String("scope", scope), zap.Error(err))
		}
		return &RateLimitExceededError{Scope: scope, RetryAfter: retryAfter}
	}

	if err := s.store.RecordAttempt(ctx, storageKey, now); err != nil {
		s.logger.Warn("rate limit record failed", zap.String("scope", scope), zap.Error(err))
	}

	return nil
}

func normalizeIdentifierKey(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
