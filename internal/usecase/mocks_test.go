package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/core/port"
	"github.com/courtbook/identity-service/internal/infra/config"
	"github.com/courtbook/identity-service/internal/repository"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestConfig() *config.AppConfig {
	return &config.AppConfig{
		RateLimit: config.RateLimitSettings{
			RegisterWindow:      15 * time.Minute,
			RegisterMaxAttempts: 5,
			VerifyWindow:        5 * time.Minute,
			VerifyMaxAttempts:   10,
			LoginWindow:         15 * time.Minute,
			LoginMaxAttempts:    10,
			ForgotWindow:        15 * time.Minute,
			ForgotMaxAttempts:   5,
			ResendCooldown:      time.Minute,
			ResendDailyMax:      5,
		},
		OTP:     config.OTPSettings{Length: 6, TTL: 10 * time.Minute, MaxAttempts: 5},
		Lockout: config.LockoutSettings{MaxFailedLogins: 5},
		Reset:   config.ResetSettings{TokenTTL: time.Hour, BaseURL: "https://app.example.com/reset"},
	}
}

type stubUserRepo struct {
	users map[string]*domain.User

	createErr        error
	createCalls      int
	updateStatusErr  error
	updatePassErr    error
	updateLoginCalls int
}

func newStubUserRepo(users ...*domain.User) *stubUserRepo {
	repo := &stubUserRepo{users: map[string]*domain.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *stubUserRepo) Create(_ context.Context, user domain.User) error {
	r.createCalls++
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrDuplicateEmail
		}
		if existing.Phone != nil && user.Phone != nil && *existing.Phone == *user.Phone {
			return repository.ErrDuplicatePhone
		}
	}
	copied := user
	r.users[user.ID] = &copied
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := r.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Phone != nil && *u.Phone == phone {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByEmailOrPhone(_ context.Context, email string, phone *string) (*domain.User, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	for _, u := range r.users {
		if phone != nil && u.Phone != nil && *u.Phone == *phone {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByProvider(_ context.Context, provider domain.AuthProvider, providerID string) (*domain.User, error) {
	for _, u := range r.users {
		if link, ok := u.AuthProviders[provider]; ok && link.ProviderID == providerID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) UpdateStatus(_ context.Context, id string, status domain.UserStatus) error {
	if r.updateStatusErr != nil {
		return r.updateStatusErr
	}
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Status = status
	return nil
}

func (r *stubUserRepo) UpdatePassword(_ context.Context, id string, passwordHash string, _ time.Time) error {
	if r.updatePassErr != nil {
		return r.updatePassErr
	}
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = &passwordHash
	u.FailedLoginCount = 0
	u.IsLocked = false
	u.LockedAt = nil
	return nil
}

func (r *stubUserRepo) UpdateLoginState(_ context.Context, id string, failedCount int, locked bool, lockedAt *time.Time, lastLogin *time.Time) error {
	r.updateLoginCalls++
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.FailedLoginCount = failedCount
	u.IsLocked = locked
	u.LockedAt = lockedAt
	if lastLogin != nil {
		u.LastLogin = lastLogin
	}
	return nil
}

func (r *stubUserRepo) LinkProvider(_ context.Context, id string, provider domain.AuthProvider, link domain.ProviderLink) error {
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.AuthProviders == nil {
		u.AuthProviders = map[domain.AuthProvider]domain.ProviderLink{}
	}
	u.AuthProviders[provider] = link
	return nil
}

type stubCodeRepo struct {
	codes map[string]*domain.VerificationCode

	createErr error
}

func newStubCodeRepo(codes ...*domain.VerificationCode) *stubCodeRepo {
	repo := &stubCodeRepo{codes: map[string]*domain.VerificationCode{}}
	for _, c := range codes {
		repo.codes[c.ID] = c
	}
	return repo
}

func (r *stubCodeRepo) Create(_ context.Context, code domain.VerificationCode) error {
	if r.createErr != nil {
		return r.createErr
	}
	copied := code
	r.codes[code.ID] = &copied
	return nil
}

func (r *stubCodeRepo) GetLatestByUser(_ context.Context, userID string) (*domain.VerificationCode, error) {
	var newest *domain.VerificationCode
	for _, c := range r.codes {
		if c.UserID != userID || c.ConsumedAt != nil {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	if newest == nil {
		return nil, repository.ErrNotFound
	}
	copied := *newest
	return &copied, nil
}

func (r *stubCodeRepo) IncrementAttempts(_ context.Context, id string) (int, error) {
	c, ok := r.codes[id]
	if !ok || c.ConsumedAt != nil {
		return 0, repository.ErrNotFound
	}
	c.Attempts++
	return c.Attempts, nil
}

func (r *stubCodeRepo) Consume(_ context.Context, id string, consumedAt time.Time) error {
	c, ok := r.codes[id]
	if !ok || c.ConsumedAt != nil {
		return repository.ErrNotFound
	}
	at := consumedAt
	c.ConsumedAt = &at
	return nil
}

func (r *stubCodeRepo) InvalidateActive(_ context.Context, userID string, invalidatedAt time.Time) error {
	for _, c := range r.codes {
		if c.UserID == userID && c.ConsumedAt == nil {
			at := invalidatedAt
			c.ConsumedAt = &at
		}
	}
	return nil
}

type stubTokenRepo struct {
	refresh map[string]*domain.RefreshToken
	resets  map[string]*domain.PasswordResetToken
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{
		refresh: map[string]*domain.RefreshToken{},
		resets:  map[string]*domain.PasswordResetToken{},
	}
}

func (r *stubTokenRepo) CreateRefreshToken(_ context.Context, token domain.RefreshToken) error {
	copied := token
	r.refresh[token.ID] = &copied
	return nil
}

func (r *stubTokenRepo) GetRefreshTokenByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	for _, t := range r.refresh {
		if t.TokenHash == hash {
			copied := *t
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubTokenRepo) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) (bool, error) {
	t, ok := r.refresh[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if t.RevokedAt != nil {
		return false, nil
	}
	at := revokedAt
	t.RevokedAt = &at
	return true, nil
}

func (r *stubTokenRepo) RevokeRefreshTokensForUser(_ context.Context, userID string, revokedAt time.Time) (int, error) {
	revoked := 0
	for _, t := range r.refresh {
		if t.UserID == userID && t.RevokedAt == nil {
			at := revokedAt
			t.RevokedAt = &at
			revoked++
		}
	}
	return revoked, nil
}

func (r *stubTokenRepo) CreatePasswordReset(_ context.Context, token domain.PasswordResetToken) error {
	copied := token
	r.resets[token.ID] = &copied
	return nil
}

func (r *stubTokenRepo) GetPasswordResetByHash(_ context.Context, hash string) (*domain.PasswordResetToken, error) {
	for _, t := range r.resets {
		if t.TokenHash == hash {
			copied := *t
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubTokenRepo) ConsumePasswordReset(_ context.Context, id string, usedAt time.Time) (bool, error) {
	t, ok := r.resets[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if t.UsedAt != nil {
		return false, nil
	}
	at := usedAt
	t.UsedAt = &at
	return true, nil
}

func (r *stubTokenRepo) InvalidatePasswordResetsForUser(_ context.Context, userID string, invalidatedAt time.Time) error {
	for _, t := range r.resets {
		if t.UserID == userID && t.UsedAt == nil {
			at := invalidatedAt
			t.UsedAt = &at
		}
	}
	return nil
}

func (r *stubTokenRepo) activeRefreshCount(userID string) int {
	active := 0
	for _, t := range r.refresh {
		if t.UserID == userID && t.RevokedAt == nil {
			active++
		}
	}
	return active
}

type stubAuditRepo struct {
	events    []domain.AuditEvent
	appendErr error
}

func (r *stubAuditRepo) Append(_ context.Context, event domain.AuditEvent) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.events = append(r.events, event)
	return nil
}

func (r *stubAuditRepo) ListByUser(_ context.Context, userID string, _ int) ([]domain.AuditEvent, error) {
	var out []domain.AuditEvent
	for _, e := range r.events {
		if e.UserID != nil && *e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *stubAuditRepo) lastEventType() domain.AuditEventType {
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1].EventType
}

func (r *stubAuditRepo) countByType(eventType domain.AuditEventType) int {
	count := 0
	for _, e := range r.events {
		if e.EventType == eventType {
			count++
		}
	}
	return count
}

type stubPublisher struct {
	registered     []domain.UserRegisteredEvent
	verified       []domain.UserVerifiedEvent
	passwordEvents []domain.PasswordChangedEvent
	resetRequested []domain.PasswordResetRequestedEvent
	locked         []domain.AccountLockedEvent
	publishErr     error
}

func (p *stubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.registered = append(p.registered, event)
	return p.publishErr
}

func (p *stubPublisher) PublishUserVerified(_ context.Context, event domain.UserVerifiedEvent) error {
	p.verified = append(p.verified, event)
	return p.publishErr
}

func (p *stubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.passwordEvents = append(p.passwordEvents, event)
	return p.publishErr
}

func (p *stubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.resetRequested = append(p.resetRequested, event)
	return p.publishErr
}

func (p *stubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.locked = append(p.locked, event)
	return p.publishErr
}

type sentOTP struct {
	channel     domain.OTPChannel
	destination string
	code        string
}

type stubNotifier struct {
	otps       []sentOTP
	resetLinks []string
	changed    []string
	sendErr    error
}

func (n *stubNotifier) SendOTP(_ context.Context, channel domain.OTPChannel, destination, code string) error {
	if n.sendErr != nil {
		return n.sendErr
	}
	n.otps = append(n.otps, sentOTP{channel: channel, destination: destination, code: code})
	return nil
}

func (n *stubNotifier) SendPasswordReset(_ context.Context, _ string, resetLink string) error {
	if n.sendErr != nil {
		return n.sendErr
	}
	n.resetLinks = append(n.resetLinks, resetLink)
	return nil
}

func (n *stubNotifier) SendPasswordChanged(_ context.Context, email string) error {
	if n.sendErr != nil {
		return n.sendErr
	}
	n.changed = append(n.changed, email)
	return nil
}

// memoryRateLimitStore is an in-process stand-in for the Redis sliding window.
type memoryRateLimitStore struct {
	attempts map[string][]time.Time
	failErr  error
}

func newMemoryRateLimitStore() *memoryRateLimitStore {
	return &memoryRateLimitStore{attempts: map[string][]time.Time{}}
}

func (s *memoryRateLimitStore) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	if s.failErr != nil {
		return s.failErr
	}
	cutoff := reference.Add(-window)
	var kept []time.Time
	for _, at := range s.attempts[identifier] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	s.attempts[identifier] = kept
	return nil
}

func (s *memoryRateLimitStore) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if s.failErr != nil {
		return 0, s.failErr
	}
	cutoff := reference.Add(-window)
	count := 0
	for _, at := range s.attempts[identifier] {
		if at.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (s *memoryRateLimitStore) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.attempts[identifier] = append(s.attempts[identifier], at)
	return nil
}

func (s *memoryRateLimitStore) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if s.failErr != nil {
		return time.Time{}, false, s.failErr
	}
	cutoff := reference.Add(-window)
	var inWindow []time.Time
	for _, at := range s.attempts[identifier] {
		if at.After(cutoff) {
			inWindow = append(inWindow, at)
		}
	}
	if len(inWindow) == 0 {
		return time.Time{}, false, nil
	}
	sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].Before(inWindow[j]) })
	return inWindow[0], true, nil
}

type stubQuotaStore struct {
	counts map[string]int
}

func newStubQuotaStore() *stubQuotaStore {
	return &stubQuotaStore{counts: map[string]int{}}
}

func (s *stubQuotaStore) key(identifier string, day time.Time) string {
	return identifier + ":" + day.Format("2006-01-02")
}

func (s *stubQuotaStore) IncrementDaily(_ context.Context, identifier string, day time.Time) (int, error) {
	k := s.key(identifier, day)
	s.counts[k]++
	return s.counts[k], nil
}

func (s *stubQuotaStore) DailyCount(_ context.Context, identifier string, day time.Time) (int, error) {
	return s.counts[s.key(identifier, day)], nil
}

type stubHasher struct {
	hashErr error
}

func (h *stubHasher) Hash(password string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "hashed:" + password, nil
}

func (h *stubHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "hashed:"+password, nil
}

type stubPolicy struct {
	err error
}

func (p *stubPolicy) Validate(string, domain.PasswordContext) error {
	return p.err
}

type stubVerifier struct {
	identity  *port.ProviderIdentity
	verifyErr error
}

func (v *stubVerifier) Verify(context.Context, domain.AuthProvider, string) (*port.ProviderIdentity, error) {
	if v.verifyErr != nil {
		return nil, v.verifyErr
	}
	return v.identity, nil
}

var (
	_ port.UserRepository             = (*stubUserRepo)(nil)
	_ port.VerificationCodeRepository = (*stubCodeRepo)(nil)
	_ port.TokenRepository            = (*stubTokenRepo)(nil)
	_ port.AuditRepository            = (*stubAuditRepo)(nil)
	_ port.EventPublisher             = (*stubPublisher)(nil)
	_ port.NotificationGateway        = (*stubNotifier)(nil)
	_ port.RateLimitStore             = (*memoryRateLimitStore)(nil)
	_ port.DailyQuotaStore            = (*stubQuotaStore)(nil)
	_ port.PasswordHasher             = (*stubHasher)(nil)
	_ port.PasswordPolicyValidator    = (*stubPolicy)(nil)
	_ port.ProviderVerifier           = (*stubVerifier)(nil)
)
