package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/core/port"
	"github.com/courtbook/identity-service/internal/infra/config"
	"github.com/courtbook/identity-service/internal/repository"
)

const (
	verifyRateLimitScope = "verify"
	resendCooldownScope  = "resend_cooldown"
	resendQuotaScope     = "resend"

	defaultResendCooldown = time.Minute
	defaultResendDailyMax = 5
)

var (
	// ErrUserNotFound indicates no account matches the supplied identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyVerified indicates the account has already completed verification.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrVerificationCodeInvalid indicates the provided code does not match or no code is outstanding.
	ErrVerificationCodeInvalid = errors.New("verification code invalid")
	// ErrVerificationCodeExpired indicates the code exists but is expired.
	ErrVerificationCodeExpired = errors.New("verification code expired")
	// ErrVerificationAttemptsExceeded indicates the code was invalidated after too many wrong guesses.
	ErrVerificationAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrResendQuotaExceeded indicates the daily resend allowance is exhausted.
	ErrResendQuotaExceeded = errors.New("resend quota exceeded")
)

// VerificationService confirms account ownership through one-time passcodes.
type VerificationService struct {
	cfg        *config.AppConfig
	users      port.UserRepository
	codes      port.VerificationCodeRepository
	quota      port.DailyQuotaStore
	audit      port.AuditRepository
	events     port.EventPublisher
	otp        *OTPService
	rateLimits *RateLimitService
	logger     *zap.Logger
	now        func() time.Time
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(
	cfg *config.AppConfig,
	users port.UserRepository,
	codes port.VerificationCodeRepository,
	quota port.DailyQuotaStore,
	audit port.AuditRepository,
	events port.EventPublisher,
	otp *OTPService,
	rateLimits *RateLimitService,
	log *zap.Logger,
) *VerificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &VerificationService{
		cfg:        cfg,
		users:      users,
		codes:      codes,
		quota:      quota,
		audit:      audit,
		events:     events,
		otp:        otp,
		rateLimits: rateLimits,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *VerificationService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// VerifyInput carries the payload for an OTP submission.
type VerifyInput struct {
	Email     string
	Code      string
	IP        string
	UserAgent string
}

// VerifyOTP checks the submitted code against the outstanding challenge and
// promotes the account to verified. Wrong guesses burn an attempt; crossing
// the attempt ceiling invalidates the code entirely.
func (s *VerificationService) VerifyOTP(ctx context.Context, input VerifyInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	submitted := strings.TrimSpace(input.Code)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if submitted == "" {
		return nil, fmt.Errorf("code is required")
	}

	now := s.now().UTC()

	if s.cfg != nil {
		if err := s.rateLimits.Check(ctx, verifyRateLimitScope, email, s.cfg.RateLimit.VerifyWindow, s.cfg.RateLimit.VerifyMaxAttempts, now); err != nil {
			return nil, err
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user.Status == domain.UserStatusVerified {
		return nil, ErrAlreadyVerified
	}

	code, err := s.codes.GetLatestByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.auditVerifyFailed(ctx, user, input, now, map[string]any{"reason": "no active code"})
			return nil, ErrVerificationCodeInvalid
		}
		return nil, fmt.Errorf("lookup verification code: %w", err)
	}

	if !code.ExpiresAt.After(now) {
		s.auditVerifyFailed(ctx, user, input, now, map[string]any{"reason": "code expired"})
		return nil, ErrVerificationCodeExpired
	}

	if code.Attempts >= code.MaxAttempts {
		s.auditVerifyFailed(ctx, user, input, now, map[string]any{"reason": "attempts exhausted", "attempts_left": 0})
		return nil, ErrVerificationAttemptsExceeded
	}

	if subtle.ConstantTimeCompare([]byte(code.Code), []byte(submitted)) != 1 {
		attempts, err := s.codes.IncrementAttempts(ctx, code.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// The code was consumed between lookup and increment.
				s.auditVerifyFailed(ctx, user, input, now, map[string]any{"reason": "code already consumed"})
				return nil, ErrVerificationCodeInvalid
			}
			return nil, fmt.Errorf("increment attempts: %w", err)
		}

		attemptsLeft := code.MaxAttempts - attempts
		if attemptsLeft < 0 {
			attemptsLeft = 0
		}
		s.auditVerifyFailed(ctx, user, input, now, map[string]any{"reason": "code mismatch", "attempts_left": attemptsLeft})

		if attempts >= code.MaxAttempts {
			if err := s.codes.Consume(ctx, code.ID, now); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("invalidate exhausted code: %w", err)
			}
			return nil, ErrVerificationAttemptsExceeded
		}

		return nil, ErrVerificationCodeInvalid
	}

	// The conditional consume settles concurrent submissions of the same
	// code: only the first caller reaches the status update.
	if err := s.codes.Consume(ctx, code.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVerificationCodeInvalid
		}
		return nil, fmt.Errorf("consume verification code: %w", err)
	}

	if err := s.users.UpdateStatus(ctx, user.ID, domain.UserStatusVerified); err != nil {
		return nil, fmt.Errorf("update user status: %w", err)
	}
	user.Status = domain.UserStatusVerified

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &user.ID,
		EventType: domain.AuditVerifySuccess,
		Email:     &user.Email,
		IP:        stringPtrOrNil(input.IP),
		UserAgent: stringPtrOrNil(input.UserAgent),
		CreatedAt: now,
	})

	if s.events != nil {
		event := domain.UserVerifiedEvent{
			EventID:    uuid.NewString(),
			UserID:     user.ID,
			Channel:    string(code.Channel),
			VerifiedAt: now,
		}
		if err := s.events.PublishUserVerified(ctx, event); err != nil {
			s.logger.Warn("publish user verified failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	sanitized := user.Sanitized()
	return &sanitized, nil
}

func (s *VerificationService) auditVerifyFailed(ctx context.Context, user *domain.User, input VerifyInput, now time.Time, meta map[string]any) {
	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &user.ID,
		EventType: domain.AuditVerifyFailed,
		Email:     &user.Email,
		IP:        stringPtrOrNil(input.IP),
		UserAgent: stringPtrOrNil(input.UserAgent),
		Metadata:  meta,
		CreatedAt: now,
	})
}

// ResendInput carries the payload for an OTP resend request.
type ResendInput struct {
	Email     string
	IP        string
	UserAgent string
}

// ResendResult reports the freshly issued challenge.
type ResendResult struct {
	Channel   domain.OTPChannel
	ExpiresAt time.Time
}

func (s *VerificationService) resendCooldown() time.Duration {
	if s.cfg != nil && s.cfg.RateLimit.ResendCooldown > 0 {
		return s.cfg.RateLimit.ResendCooldown
	}
	return defaultResendCooldown
}

func (s *VerificationService) resendDailyMax() int {
	if s.cfg != nil && s.cfg.RateLimit.ResendDailyMax > 0 {
		return s.cfg.RateLimit.ResendDailyMax
	}
	return defaultResendDailyMax
}

// ResendOTP issues a replacement code, subject to a per-user cooldown and a
// daily allowance that resets at local midnight. The new code supersedes any
// outstanding one.
func (s *VerificationService) ResendOTP(ctx context.Context, input ResendInput) (*ResendResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	now := s.now().UTC()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user.Status == domain.UserStatusVerified {
		return nil, ErrAlreadyVerified
	}

	// One send per cooldown window, modeled as a sliding-window limit of one.
	if err := s.rateLimits.Check(ctx, resendCooldownScope, user.ID, s.resendCooldown(), 1, now); err != nil {
		return nil, err
	}

	// Quota is consumed before the send, so attempts that fail downstream
	// still count against the daily allowance.
	if s.quota != nil {
		count, err := s.quota.IncrementDaily(ctx, fmt.Sprintf("%s:%s", resendQuotaScope, user.ID), now)
		if err != nil {
			s.logger.Warn("resend quota increment failed", zap.String("user_id", user.ID), zap.Error(err))
		} else if count > s.resendDailyMax() {
			return nil, ErrResendQuotaExceeded
		}
	}

	code, err := s.otp.Issue(ctx, user, domain.OTPChannelEmail)
	if err != nil {
		return nil, fmt.Errorf("issue verification code: %w", err)
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &user.ID,
		EventType: domain.AuditResendOTP,
		Email:     &user.Email,
		IP:        stringPtrOrNil(input.IP),
		UserAgent: stringPtrOrNil(input.UserAgent),
		CreatedAt: now,
	})

	return &ResendResult{Channel: code.Channel, ExpiresAt: code.ExpiresAt}, nil
}
