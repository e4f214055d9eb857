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
	loginRateLimitScope = "login"

	defaultMaxFailedLogins = 5
)

var (
	// ErrInvalidCredentials indicates the provided identifier or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactiveAccount indicates the account is disabled.
	ErrInactiveAccount = errors.New("account is not active")
	// ErrAccountPending indicates the account requires verification before login.
	ErrAccountPending = errors.New("account pending verification")
	// ErrAccountLocked indicates the account is locked after repeated failed logins.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidRefreshToken indicates the provided refresh token does not exist or was revoked.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrExpiredRefreshToken indicates the provided refresh token has expired.
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	// ErrRefreshTokenReused indicates a previously rotated token was replayed.
	// All sessions for the user are revoked when this is detected.
	ErrRefreshTokenReused = errors.New("refresh token reuse detected")
	// ErrInvalidAccessToken indicates the provided access token is malformed or signature validation failed.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the provided access token has expired.
	ErrExpiredAccessToken = errors.New("access token expired")
)

// InvalidCredentialsError is returned for a wrong password on an existing
// account, carrying how many attempts remain before the lock trips.
type InvalidCredentialsError struct {
	AttemptsRemaining int
}

func (e *InvalidCredentialsError) Error() string {
	return ErrInvalidCredentials.Error()
}

func (e *InvalidCredentialsError) Unwrap() error {
	return ErrInvalidCredentials
}

// AuthService coordinates credential login, token rotation, and logout.
type AuthService struct {
	cfg        *config.AppConfig
	users      port.UserRepository
	tokens     port.TokenRepository
	audit      port.AuditRepository
	events     port.EventPublisher
	issuer     *security.TokenIssuer
	hasher     port.PasswordHasher
	rateLimits *RateLimitService
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	tokens port.TokenRepository,
	audit port.AuditRepository,
	events port.EventPublisher,
	issuer *security.TokenIssuer,
	hasher port.PasswordHasher,
	rateLimits *RateLimitService,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		cfg:        cfg,
		users:      users,
		tokens:     tokens,
		audit:      audit,
		events:     events,
		issuer:     issuer,
		hasher:     hasher,
		rateLimits: rateLimits,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *AuthService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *AuthService) maxFailedLogins() int {
	if s.cfg != nil && s.cfg.Lockout.MaxFailedLogins > 0 {
		return s.cfg.Lockout.MaxFailedLogins
	}
	return defaultMaxFailedLogins
}

// LoginInput carries the payload for a password login attempt. Identifier is
// the registered email address or phone number.
type LoginInput struct {
	Identifier string
	Password   string
	IP         string
	UserAgent  string
}

// TokenPair bundles a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult reports the authenticated user and issued tokens.
type LoginResult struct {
	User   domain.User
	Tokens TokenPair
}

// Login validates credentials and issues a token pair. Unknown accounts and
// wrong passwords collapse into ErrInvalidCredentials so callers cannot probe
// which addresses are registered.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" {
		return nil, fmt.Errorf("identifier is required")
	}
	if input.Password == "" {
		return nil, fmt.Errorf("password is required")
	}

	now := s.now().UTC()

	if s.cfg != nil {
		if err := s.rateLimits.Check(ctx, loginRateLimitScope, identifier, s.cfg.RateLimit.LoginWindow, s.cfg.RateLimit.LoginMaxAttempts, now); err != nil {
			return nil, err
		}
	}

	user, err := s.lookupByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrInactiveAccount
	}
	if user.IsLocked {
		return nil, ErrAccountLocked
	}
	if user.Status == domain.UserStatusPending {
		return nil, ErrAccountPending
	}
	if user.PasswordHash == nil || *user.PasswordHash == "" {
		// Social-only accounts have no password to check.
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(input.Password, *user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.registerFailedLogin(ctx, user, input, now)
	}

	if err := s.users.UpdateLoginState(ctx, user.ID, 0, false, nil, &now); err != nil {
		return nil, fmt.Errorf("reset login state: %w", err)
	}
	user.FailedLoginCount = 0
	user.LastLogin = &now

	pair, err := s.IssueSession(ctx, user, input.IP, input.UserAgent)
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &user.ID,
		EventType: domain.AuditLoginSuccess,
		Email:     &user.Email,
		IP:        stringPtrOrNil(input.IP),
		UserAgent: stringPtrOrNil(input.UserAgent),
		CreatedAt: now,
	})

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	return &LoginResult{User: user.Sanitized(), Tokens: *pair}, nil
}

// lookupByIdentifier resolves the account behind an email address or phone
// number. Anything containing an @ is treated as an email.
func (s *AuthService) lookupByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	if strings.Contains(identifier, "@") {
		return s.users.GetByEmail(ctx, strings.ToLower(identifier))
	}
	return s.users.GetByPhone(ctx, identifier)
}

// registerFailedLogin burns a failed attempt and locks the account once the
// ceiling is reached. The attempt that trips the lock reports ErrAccountLocked
// rather than ErrInvalidCredentials.
func (s *AuthService) registerFailedLogin(ctx context.Context, user *domain.User, input LoginInput, now time.Time) error {
	failed := user.FailedLoginCount + 1
	locked := failed >= s.maxFailedLogins()

	var lockedAt *time.Time
	if locked {
		lockedAt = &now
	}

	if err := s.users.UpdateLoginState(ctx, user.ID, failed, locked, lockedAt, nil); err != nil {
		s.logger.Warn("update failed login state",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &user.ID,
		EventType: domain.AuditLoginFailed,
		Email:     &user.Email,
		IP:        stringPtrOrNil(input.IP),
		UserAgent: stringPtrOrNil(input.UserAgent),
		Metadata:  map[string]any{"failed_count": failed, "locked": locked},
		CreatedAt: now,
	})

	if !locked {
		return &InvalidCredentialsError{AttemptsRemaining: s.maxFailedLogins() - failed}
	}

	if s.events != nil {
		event := domain.AccountLockedEvent{
			EventID:        uuid.NewString(),
			UserID:         user.ID,
			LockedAt:       now,
			FailedAttempts: failed,
			IPAddress:      stringPtrOrNil(input.IP),
		}
		if err := s.events.PublishAccountLocked(ctx, event); err != nil {
			s.logger.Warn("publish account locked failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Warn("account locked after repeated failed logins",
		zap.String("user_id", user.ID),
		zap.Int("failed_count", failed),
	)

	return ErrAccountLocked
}

// IssueSession mints an access and refresh token pair and persists the refresh
// token hash. It is shared by password and social logins.
func (s *AuthService) IssueSession(ctx context.Context, user *domain.User, ip, userAgent string) (*TokenPair, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("user is required")
	}
	if s.issuer == nil {
		return nil, fmt.Errorf("token issuer not configured")
	}

	now := s.now().UTC()

	access, accessClaims, err := s.issuer.IssueAccessToken(user.ID, user.Email, string(user.Status), now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, refreshClaims, err := s.issuer.IssueRefreshToken(user.ID, user.Email, string(user.Status), now)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	record := domain.RefreshToken{
		ID:        refreshClaims.ID,
		UserID:    user.ID,
		TokenHash: security.HashToken(refresh),
		IP:        stringPtrOrNil(ip),
		UserAgent: stringPtrOrNil(userAgent),
		CreatedAt: now,
		ExpiresAt: refreshClaims.ExpiresAt.Time,
	}
	if err := s.tokens.CreateRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

// Refresh rotates a refresh token: the presented token is burned and a new
// pair is issued. Replaying a burned token revokes every outstanding session
// for the account.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*LoginResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	if _, err := s.issuer.Parse(refreshToken, security.TokenTypeRefresh); err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrExpiredRefreshToken
		}
		return nil, ErrInvalidRefreshToken
	}

	now := s.now().UTC()

	record, err := s.tokens.GetRefreshTokenByHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if record.RevokedAt != nil {
		return nil, s.handleRefreshReuse(ctx, record, ip, userAgent, now)
	}
	if now.After(record.ExpiresAt) {
		return nil, ErrExpiredRefreshToken
	}

	// Burn before reissue so concurrent rotations of the same token cannot
	// both succeed. The loser of the race is treated as a replay.
	revoked, err := s.tokens.RevokeRefreshToken(ctx, record.ID, now)
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !revoked {
		return nil, s.handleRefreshReuse(ctx, record, ip, userAgent, now)
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrInactiveAccount
	}
	if user.IsLocked {
		return nil, ErrAccountLocked
	}
	if user.Status == domain.UserStatusPending {
		return nil, ErrAccountPending
	}

	pair, err := s.IssueSession(ctx, user, ip, userAgent)
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &user.ID,
		EventType: domain.AuditTokenRefresh,
		IP:        stringPtrOrNil(ip),
		UserAgent: stringPtrOrNil(userAgent),
		Metadata:  map[string]any{"rotated_from": record.ID},
		CreatedAt: now,
	})

	return &LoginResult{User: user.Sanitized(), Tokens: *pair}, nil
}

func (s *AuthService) handleRefreshReuse(ctx context.Context, record *domain.RefreshToken, ip, userAgent string, now time.Time) error {
	revoked, err := s.tokens.RevokeRefreshTokensForUser(ctx, record.UserID, now)
	if err != nil {
		s.logger.Error("revoke sessions after refresh reuse",
			zap.String("user_id", record.UserID),
			zap.Error(err),
		)
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    &record.UserID,
		EventType: domain.AuditTokenRefresh,
		IP:        stringPtrOrNil(ip),
		UserAgent: stringPtrOrNil(userAgent),
		Metadata:  map[string]any{"reuse_detected": true, "token_id": record.ID, "sessions_revoked": revoked},
		CreatedAt: now,
	})

	s.logger.Warn("refresh token reuse detected",
		zap.String("user_id", record.UserID),
		zap.String("token_id", record.ID),
		zap.Int("sessions_revoked", revoked),
	)

	return ErrRefreshTokenReused
}

// Logout revokes the presented refresh token. Revoking an already revoked or
// unknown token succeeds so repeated logouts stay idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken, ip, userAgent string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return fmt.Errorf("refresh token is required")
	}

	now := s.now().UTC()

	var userID *string
	record, err := s.tokens.GetRefreshTokenByHash(ctx, security.HashToken(refreshToken))
	switch {
	case err == nil:
		if _, err := s.tokens.RevokeRefreshToken(ctx, record.ID, now); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		userID = &record.UserID
	case errors.Is(err, repository.ErrNotFound):
		// Unknown token still records the logout below.
	default:
		return fmt.Errorf("lookup refresh token: %w", err)
	}

	recordAudit(ctx, s.audit, s.logger, domain.AuditEvent{
		UserID:    userID,
		EventType: domain.AuditLogout,
		IP:        stringPtrOrNil(ip),
		UserAgent: stringPtrOrNil(userAgent),
		CreatedAt: now,
	})

	return nil
}

// ValidateAccessToken verifies the bearer token and returns its claims.
func (s *AuthService) ValidateAccessToken(raw string) (*security.Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("access token is required")
	}

	claims, err := s.issuer.Parse(raw, security.TokenTypeAccess)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}
