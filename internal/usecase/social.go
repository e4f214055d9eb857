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
	"github.com/courtbook/identity-service/internal/infra/logger"
	"github.com/courtbook/identity-service/internal/repository"
)

var (
	// ErrUnsupportedProvider indicates the requested identity provider is not configured.
	ErrUnsupportedProvider = errors.New("unsupported auth provider")
	// ErrProviderTokenInvalid indicates the provider token failed verification.
	ErrProviderTokenInvalid = errors.New("provider token invalid")
)

// SocialLoginService signs users in through external identity providers.
// Accounts created this way are born verified since the provider already
// confirmed the address.
type SocialLoginService struct {
	users    port.UserRepository
	audit    port.AuditRepository
	events   port.EventPublisher
	verifier port.ProviderVerifier
	auth     *AuthService
	logger   *zap.Logger
	now      func() time.Time
}

// NewSocialLoginService constructs a SocialLoginService.
func NewSocialLoginService(
	users port.UserRepository,
	audit port.AuditRepository,
	events port.EventPublisher,
	verifier port.ProviderVerifier,
	auth *AuthService,
	log *zap.Logger,
) *SocialLoginService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SocialLoginService{
		users:    users,
		audit:    audit,
		events:   events,
		verifier: verifier,
		auth:     auth,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *SocialLoginService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SocialLoginInput carries the payload for a provider-backed login.
type SocialLoginInput struct {
	Provider  domain.AuthProvider
	IDToken   string
	IP        string
	UserAgent string
}

// Login verifies the provider token and resolves it to a local account. A
// matching provider link wins; otherwise an existing account with the same
// email gets the provider linked; otherwise a new verified account is created.
func (s *SocialLoginService) Login(ctx context.Context, input SocialLoginInput) (*LoginResult, error) {
	if input.Provider != domain.AuthProviderGoogle && input.Provider != domain.AuthProviderFacebook {
		return nil, ErrUnsupportedProvider
	}
	if strings.TrimSpace(input.IDToken) == "" {
		return nil, fmt.Errorf("id token is required")
	}
	if s.verifier == nil {
		return nil, ErrUnsupportedProvider
	}

	identity, err := s.verifier.Verify(ctx, input.Provider, input.IDToken)
	if err != nil {
		s.logger.Warn("provider token verification failed",
			zap.String("provider", string(input.Provider)),
			zap.Error(err),
		)
		return nil, ErrProviderTokenInvalid
	}

	now := s.now().UTC()

	user, err := s.resolveUser(ctx, identity, now)
	if err != nil {
		return nil, err
	}

	if user.IsLocked {
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}

	if err := s.users.UpdateLoginState(ctx, user.ID, 0, false, nil, &now); err != nil {
		s.logger.Warn("update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.LastLogin = &now

	pair, err := s.auth.IssueSession(ctx, user, input.IP, input.UserAgent)
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &user.ID,
		EventType: domain.AuditLoginSuccess,
		Email:     &user.Email,
		IP:        stringPtrOrNil(input.IP),
		UserAgent: stringPtrOrNil(input.UserAgent),
		Metadata:  map[string]any{"provider": string(input.Provider)},
		CreatedAt: now,
	})

	s.logger.Info("social login",
		zap.String("user_id", user.ID),
		zap.String("provider", string(input.Provider)),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	return &LoginResult{User: user.Sanitized(), Tokens: *pair}, nil
}

func (s *SocialLoginService) resolveUser(ctx context.Context, identity *port.ProviderIdentity, now time.Time) (*domain.User, error) {
	user, err := s.users.GetByProvider(ctx, identity.Provider, identity.ProviderID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup provider link: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email == "" {
		return nil, ErrProviderTokenInvalid
	}

	link := domain.ProviderLink{ProviderID: identity.ProviderID, Email: email}

	user, err = s.users.GetByEmail(ctx, email)
	if err == nil {
		if err := s.users.LinkProvider(ctx, user.ID, identity.Provider, link); err != nil {
			return nil, fmt.Errorf("link provider: %w", err)
		}
		if user.AuthProviders == nil {
			user.AuthProviders = map[domain.AuthProvider]domain.ProviderLink{}
		}
		user.AuthProviders[identity.Provider] = link
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	created := domain.User{
		ID:       uuid.NewString(),
		Email:    email,
		FullName: identity.FullName,
		Status:   domain.UserStatusVerified,
		IsActive: true,
		AuthProviders: map[domain.AuthProvider]domain.ProviderLink{
			identity.Provider: link,
		},
		RegisteredAt: now,
	}
	if err := s.users.Create(ctx, created); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// Lost a race with a concurrent signup for the same address.
			existing, lookupErr := s.users.GetByEmail(ctx, email)
			if lookupErr != nil {
				return nil, fmt.Errorf("lookup user after duplicate: %w", lookupErr)
			}
			if linkErr := s.users.LinkProvider(ctx, existing.ID, identity.Provider, link); linkErr != nil {
				return nil, fmt.Errorf("link provider: %w", linkErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &created.ID,
		EventType: domain.AuditRegister,
		Email:     &created.Email,
		Metadata:  map[string]any{"provider": string(identity.Provider)},
		CreatedAt: now,
	})

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       created.ID,
			Email:        &created.Email,
			FullName:     created.FullName,
			Status:       string(created.Status),
			RegisteredAt: now,
			Metadata:     map[string]any{"provider": string(identity.Provider)},
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			s.logger.Warn("publish user registered failed",
				zap.String("user_id", created.ID),
				zap.Error(err),
			)
		}
	}

	return &created, nil
}
