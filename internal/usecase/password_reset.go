package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/core/port"
	"github.com/courtbook/identity-service/internal/infra/config"
	"github.com/courtbook/identity-service/internal/infra/logger"
	"github.com/courtbook/identity-service/internal/infra/security"
	"github.com/courtbook/identity-service/internal/repository"
)

const (
	forgotRateLimitScope = "forgot_password"

	passwordResetReason  = "password_reset"
	passwordChangeReason = "password_change"

	defaultResetTokenTTL = time.Hour
	resetTokenBytes      = 32
)

var (
	// ErrPasswordResetTokenInvalid indicates the supplied reset token is unknown or already used.
	ErrPasswordResetTokenInvalid = errors.New("password reset token invalid")
	// ErrPasswordResetTokenExpired indicates the supplied reset token is expired.
	ErrPasswordResetTokenExpired = errors.New("password reset token expired")
	// ErrPasswordUnchanged indicates the new password matches the current one.
	ErrPasswordUnchanged = errors.New("new password must differ from current password")
)

// PasswordService coordinates password recovery and authenticated changes.
type PasswordService struct {
	cfg        *config.AppConfig
	users      port.UserRepository
	tokens     port.TokenRepository
	audit      port.AuditRepository
	events     port.EventPublisher
	notifier   port.NotificationGateway
	hasher     port.PasswordHasher
	policy     port.PasswordPolicyValidator
	rateLimits *RateLimitService
	logger     *zap.Logger
	now        func() time.Time
}

// NewPasswordService constructs a PasswordService.
func NewPasswordService(
	cfg *config.AppConfig,
	users port.UserRepository,
	tokens port.TokenRepository,
	audit port.AuditRepository,
	events port.EventPublisher,
	notifier port.NotificationGateway,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	rateLimits *RateLimitService,
	log *zap.Logger,
) *PasswordService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordService{
		cfg:        cfg,
		users:      users,
		tokens:     tokens,
		audit:      audit,
		events:     events,
		notifier:   notifier,
		hasher:     hasher,
		policy:     policy,
		rateLimits: rateLimits,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *PasswordService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *PasswordService) resetTTL() time.Duration {
	if s.cfg != nil && s.cfg.Reset.TokenTTL > 0 {
		return s.cfg.Reset.TokenTTL
	}
	return defaultResetTokenTTL
}

// ForgotInput carries the payload for a password reset request.
type ForgotInput struct {
	Email     string
	IP        string
	UserAgent string
}

// Forgot begins password recovery. The response is identical whether or not
// the address is registered, so the endpoint cannot be used for enumeration.
func (s *PasswordService) Forgot(ctx context.Context, input ForgotInput) error {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return fmt.Errorf("email is required")
	}

	now := s.now().UTC()

	if s.cfg != nil {
		if err := s.rateLimits.Check(ctx, forgotRateLimitScope, email, s.cfg.RateLimit.ForgotWindow, s.cfg.RateLimit.ForgotMaxAttempts, now); err != nil {
			return err
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("password reset requested for unknown address",
				zap.String("email", logger.MaskEmail(email)),
			)
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if err := s.tokens.InvalidatePasswordResetsForUser(ctx, user.ID, now); err != nil {
		return fmt.Errorf("invalidate prior reset tokens: %w", err)
	}

	raw, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	expiresAt := now.Add(s.resetTTL())
	record := domain.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(raw),
		IP:        stringPtrOrNil(input.IP),
		UserAgent: stringPtrOrNil(input.UserAgent),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.tokens.CreatePasswordReset(ctx, record); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	resetLink := raw
	if s.cfg != nil && s.cfg.Reset.BaseURL != "" {
		resetLink = fmt.Sprintf("%s?token=%s", strings.TrimRight(s.cfg.Reset.BaseURL, "/"), raw)
	}
	if s.notifier == nil {
		s.logger.Warn("password reset requested with no notification gateway configured",
			zap.String("user_id", user.ID),
		)
	} else if err := s.notifier.SendPasswordReset(ctx, user.Email, resetLink); err != nil {
		s.logger.Error("send password reset email",
			zap.String("user_id", user.ID),
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err),
		)
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &user.ID,
		EventType: domain.AuditPasswordResetRequested,
		Email:     &user.Email,
		IP:        stringPtrOrNil(input.IP),
		UserAgent: stringPtrOrNil(input.UserAgent),
		CreatedAt: now,
	})

	if s.events != nil {
		event := domain.PasswordResetRequestedEvent{
			EventID:           uuid.NewString(),
			UserID:            user.ID,
			RequestedAt:       now,
			MaskedDestination: logger.MaskEmail(user.Email),
			ExpiresAt:         expiresAt,
			IPAddress:         stringPtrOrNil(input.IP),
		}
		if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
			s.logger.Warn("publish password reset requested failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// ResetInput carries the payload to finish password recovery.
type ResetInput struct {
	Token       string
	NewPassword string
	IP          string
	UserAgent   string
}

// Reset consumes a recovery token and installs the new password. All refresh
// tokens for the account are revoked and a lockout, if present, is cleared.
func (s *PasswordService) Reset(ctx context.Context, input ResetInput) error {
	raw := strings.TrimSpace(input.Token)
	if raw == "" {
		return fmt.Errorf("token is required")
	}
	if input.NewPassword == "" {
		return fmt.Errorf("new password is required")
	}

	now := s.now().UTC()

	record, err := s.tokens.GetPasswordResetByHash(ctx, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPasswordResetTokenInvalid
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	if record.UsedAt != nil {
		return ErrPasswordResetTokenInvalid
	}
	if now.After(record.ExpiresAt) {
		return ErrPasswordResetTokenExpired
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPasswordResetTokenInvalid
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if err := s.policy.Validate(input.NewPassword, domain.PasswordContext{
		Email:    user.Email,
		Phone:    derefOrEmpty(user.Phone),
		FullName: user.FullName,
	}); err != nil {
		return fmt.Errorf("%w: %s", ErrPasswordPolicyViolation, err.Error())
	}

	// First consumer wins; a concurrent submission of the same token fails.
	consumed, err := s.tokens.ConsumePasswordReset(ctx, record.ID, now)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !consumed {
		return ErrPasswordResetTokenInvalid
	}

	hash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	// UpdatePassword also clears the failed-login counter and any lockout.
	if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.finishPasswordChange(ctx, user, passwordResetReason, domain.AuditPasswordReset, input.IP, input.UserAgent, now)

	return nil
}

// ChangeInput carries the payload for an authenticated password change.
type ChangeInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	IP              string
	UserAgent       string
}

// Change updates the password of an authenticated user after verifying the
// current one. Existing sessions are revoked.
func (s *PasswordService) Change(ctx context.Context, input ChangeInput) error {
	if input.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if input.CurrentPassword == "" {
		return fmt.Errorf("current password is required")
	}
	if input.NewPassword == "" {
		return fmt.Errorf("new password is required")
	}
	if input.NewPassword == input.CurrentPassword {
		return ErrPasswordUnchanged
	}

	now := s.now().UTC()

	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if user.PasswordHash == nil || *user.PasswordHash == "" {
		return ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(input.CurrentPassword, *user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := s.policy.Validate(input.NewPassword, domain.PasswordContext{
		Email:    user.Email,
		Phone:    derefOrEmpty(user.Phone),
		FullName: user.FullName,
	}); err != nil {
		return fmt.Errorf("%w: %s", ErrPasswordPolicyViolation, err.Error())
	}

	hash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.finishPasswordChange(ctx, user, passwordChangeReason, domain.AuditPasswordChanged, input.IP, input.UserAgent, now)

	return nil
}

// finishPasswordChange handles the shared tail of reset and change: session
// revocation, audit, notification, and the published event. Failures here are
// logged but do not undo the password update.
func (s *PasswordService) finishPasswordChange(ctx context.Context, user *domain.User, reason string, eventType domain.AuditEventType, ip, userAgent string, now time.Time) {
	revoked, err := s.tokens.RevokeRefreshTokensForUser(ctx, user.ID, now)
	if err != nil {
		s.logger.Error("revoke sessions after password change",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &user.ID,
		EventType: eventType,
		Email:     &user.Email,
		IP:        stringPtrOrNil(ip),
		UserAgent: stringPtrOrNil(userAgent),
		Metadata:  map[string]any{"reason": reason, "sessions_revoked": revoked},
		CreatedAt: now,
	})

	if s.notifier != nil {
		if err := s.notifier.SendPasswordChanged(ctx, user.Email); err != nil {
			s.logger.Warn("send password changed notice",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:   uuid.NewString(),
			UserID:    user.ID,
			ChangedAt: now,
			Reason:    reason,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("password updated",
		zap.String("user_id", user.ID),
		zap.String("reason", reason),
		zap.Int("sessions_revoked", revoked),
	)
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
