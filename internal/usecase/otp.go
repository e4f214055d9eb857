package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/core/port"
	"github.com/courtbook/identity-service/internal/infra/config"
	"github.com/courtbook/identity-service/internal/infra/logger"
	"github.com/courtbook/identity-service/internal/infra/security"
)

const (
	defaultOTPLength      = 6
	defaultOTPTTL         = 10 * time.Minute
	defaultOTPMaxAttempts = 5
)

// ErrOTPUnavailable indicates the OTP service is not properly configured.
var ErrOTPUnavailable = errors.New("otp service unavailable")

// OTPService issues one-time passcodes and hands them to the notification
// gateway. Issuing a code invalidates every earlier outstanding code for the
// user, so at most one code is redeemable at any time.
type OTPService struct {
	cfg      *config.AppConfig
	codes    port.VerificationCodeRepository
	notifier port.NotificationGateway
	logger   *zap.Logger
	now      func() time.Time
}

// NewOTPService constructs an OTPService.
func NewOTPService(cfg *config.AppConfig, codes port.VerificationCodeRepository, notifier port.NotificationGateway, log *zap.Logger) *OTPService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OTPService{
		cfg:      cfg,
		codes:    codes,
		notifier: notifier,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *OTPService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *OTPService) length() int {
	if s.cfg != nil && s.cfg.OTP.Length > 0 {
		return s.cfg.OTP.Length
	}
	return defaultOTPLength
}

func (s *OTPService) ttl() time.Duration {
	if s.cfg != nil && s.cfg.OTP.TTL > 0 {
		return s.cfg.OTP.TTL
	}
	return defaultOTPTTL
}

func (s *OTPService) maxAttempts() int {
	if s.cfg != nil && s.cfg.OTP.MaxAttempts > 0 {
		return s.cfg.OTP.MaxAttempts
	}
	return defaultOTPMaxAttempts
}

// Issue generates a fresh code for the user, persists it, and dispatches it
// over the requested channel. Delivery failures are logged but do not undo
// issuance; the user can ask for a resend.
func (s *OTPService) Issue(ctx context.Context, user *domain.User, channel domain.OTPChannel) (*domain.VerificationCode, error) {
	if user == nil {
		return nil, fmt.Errorf("user is required")
	}
	if s.codes == nil {
		return nil, ErrOTPUnavailable
	}

	now := s.now().UTC()

	if err := s.codes.InvalidateActive(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("invalidate previous codes: %w", err)
	}

	raw, err := security.GenerateNumericCode(s.length())
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	code := domain.VerificationCode{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Code:        raw,
		Channel:     channel,
		MaxAttempts: s.maxAttempts(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl()),
	}

	if err := s.codes.Create(ctx, code); err != nil {
		return nil, fmt.Errorf("store otp: %w", err)
	}

	destination := user.Email
	if channel == domain.OTPChannelSMS && user.Phone != nil {
		destination = *user.Phone
	}

	if s.notifier != nil {
		if err := s.notifier.SendOTP(ctx, channel, destination, raw); err != nil {
			s.logger.Warn("otp delivery failed",
				zap.String("user_id", user.ID),
				zap.String("channel", string(channel)),
				zap.String("destination", logger.MaskEmail(destination)),
				zap.Error(err),
			)
		}
	}

	return &code, nil
}
