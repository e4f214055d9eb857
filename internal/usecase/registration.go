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
	"github.com/courtbook/identity-service/internal/repository"
)

const registerRateLimitScope = "register"

var (
	// ErrEmailTaken indicates another account already owns the email address.
	ErrEmailTaken = errors.New("email already registered")
	// ErrPhoneTaken indicates another account already owns the phone number.
	ErrPhoneTaken = errors.New("phone already registered")
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
	// ErrRegistrationUnavailable indicates the service is not properly configured.
	ErrRegistrationUnavailable = errors.New("registration service unavailable")
)

// RegistrationService handles new account onboarding.
type RegistrationService struct {
	cfg        *config.AppConfig
	users      port.UserRepository
	audit      port.AuditRepository
	events     port.EventPublisher
	otp        *OTPService
	rateLimits *RateLimitService
	hasher     port.PasswordHasher
	policy     port.PasswordPolicyValidator
	logger     *zap.Logger
	now        func() time.Time
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(
	cfg *config.AppConfig,
	users port.UserRepository,
	audit port.AuditRepository,
	events port.EventPublisher,
	otp *OTPService,
	rateLimits *RateLimitService,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	log *zap.Logger,
) *RegistrationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		cfg:        cfg,
		users:      users,
		audit:      audit,
		events:     events,
		otp:        otp,
		rateLimits: rateLimits,
		hasher:     hasher,
		policy:     policy,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *RegistrationService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RegisterInput carries the payload for a registration request.
type RegisterInput struct {
	Email     string
	Phone     string
	FullName  string
	Password  string
	IP        string
	UserAgent string
}

// RegistrationResult describes the created account and the pending challenge.
type RegistrationResult struct {
	User         domain.User
	OTPChannel   domain.OTPChannel
	OTPExpiresAt time.Time
}

// Register creates a pending account and issues its first verification code.
// The unique constraints on email and phone are the final authority on
// duplicates; the lookup beforehand only produces a friendlier error for the
// common case.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*RegistrationResult, error) {
	if s.users == nil || s.hasher == nil || s.otp == nil {
		return nil, ErrRegistrationUnavailable
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	phone := strings.TrimSpace(input.Phone)
	fullName := strings.TrimSpace(input.FullName)
	password := input.Password

	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if fullName == "" {
		return nil, fmt.Errorf("full name is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	now := s.now().UTC()

	if s.cfg != nil {
		if err := s.rateLimits.Check(ctx, registerRateLimitScope, input.IP, s.cfg.RateLimit.RegisterWindow, s.cfg.RateLimit.RegisterMaxAttempts, now); err != nil {
			return nil, err
		}
	}

	if s.policy != nil {
		if err := s.policy.Validate(password, domain.PasswordContext{Email: email, Phone: phone, FullName: fullName}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
		}
	}

	existing, err := s.users.GetByEmailOrPhone(ctx, email, stringPtrOrNil(phone))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup existing user: %w", err)
	}
	if existing != nil {
		if strings.EqualFold(existing.Email, email) {
			return nil, ErrEmailTaken
		}
		return nil, ErrPhoneTaken
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Phone:        stringPtrOrNil(phone),
		PasswordHash: &passwordHash,
		FullName:     fullName,
		Status:       domain.UserStatusPending,
		IsActive:     true,
		RegisteredAt: now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrEmailTaken
		case errors.Is(err, repository.ErrDuplicatePhone):
			return nil, ErrPhoneTaken
		default:
			return nil, fmt.Errorf("create user: %w", err)
		}
	}

	code, err := s.otp.Issue(ctx, &user, domain.OTPChannelEmail)
	if err != nil {
		return nil, fmt.Errorf("issue verification code: %w", err)
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &user.ID,
		EventType: domain.AuditRegister,
		Email:     &user.Email,
		Phone:     user.Phone,
		IP:        stringPtrOrNil(input.IP),
		UserAgent: stringPtrOrNil(input.UserAgent),
		CreatedAt: now,
	})

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       user.ID,
			Email:        &user.Email,
			Phone:        user.Phone,
			FullName:     user.FullName,
			Status:       string(user.Status),
			RegisteredAt: now,
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			s.logger.Warn("publish user registered failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	return &RegistrationResult{
		User:         user.Sanitized(),
		OTPChannel:   code.Channel,
		OTPExpiresAt: code.ExpiresAt,
	}, nil
}
