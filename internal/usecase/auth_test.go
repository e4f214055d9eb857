package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/infra/security"
)

type authFixture struct {
	svc       *AuthService
	users     *stubUserRepo
	tokens    *stubTokenRepo
	audit     *stubAuditRepo
	publisher *stubPublisher
	at        time.Time
}

func newAuthFixture(t *testing.T, users *stubUserRepo) *authFixture {
	t.Helper()

	issuer, err := security.NewTokenIssuer("0123456789abcdef0123456789abcdef", "identity-service", time.Hour, 168*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	// Token validation inside the jwt library runs against the wall clock,
	// so the fixture clock has to stay anchored to it.
	f := &authFixture{
		users:     users,
		tokens:    newStubTokenRepo(),
		audit:     &stubAuditRepo{},
		publisher: &stubPublisher{},
		at:        time.Now().UTC().Truncate(time.Second),
	}

	limiter := NewRateLimitService(newMemoryRateLimitStore(), nil)
	f.svc = NewAuthService(newTestConfig(), users, f.tokens, f.audit, f.publisher, issuer, &stubHasher{}, limiter, nil)
	f.svc.WithClock(fixedClock(f.at))
	return f
}

func verifiedUser(id, email, password string) *domain.User {
	hash := "hashed:" + password
	return &domain.User{
		ID:           id,
		Email:        email,
		PasswordHash: &hash,
		FullName:     "Jordan Lee",
		Status:       domain.UserStatusVerified,
		IsActive:     true,
	}
}

func TestLoginIssuesTokenPair(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	f := newAuthFixture(t, newStubUserRepo(user))

	result, err := f.svc.Login(context.Background(), LoginInput{
		Identifier: "Jordan@Example.com",
		Password:   strongTestPassword,
		IP:         "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("expected both tokens issued")
	}
	if result.User.PasswordHash != nil {
		t.Fatal("sanitized user must not expose password hash")
	}
	if want := f.at.Add(time.Hour); !result.Tokens.AccessExpiresAt.Equal(want) {
		t.Fatalf("access expiry %v, want %v", result.Tokens.AccessExpiresAt, want)
	}

	claims, err := f.svc.ValidateAccessToken(result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("issued access token rejected: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Email != "jordan@example.com" {
		t.Fatalf("unexpected email claim %q", claims.Email)
	}

	if f.tokens.activeRefreshCount("u1") != 1 {
		t.Fatal("expected one stored refresh token")
	}
	stored, _ := f.users.GetByID(context.Background(), "u1")
	if stored.LastLogin == nil || !stored.LastLogin.Equal(f.at) {
		t.Fatal("last login not recorded")
	}
	if f.audit.lastEventType() != domain.AuditLoginSuccess {
		t.Fatalf("expected login_success audit, got %q", f.audit.lastEventType())
	}
}

func TestLoginAcceptsPhoneIdentifier(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	phone := "+14155550142"
	user.Phone = &phone
	f := newAuthFixture(t, newStubUserRepo(user))

	result, err := f.svc.Login(context.Background(), LoginInput{
		Identifier: "+14155550142",
		Password:   strongTestPassword,
	})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.User.ID != "u1" {
		t.Fatalf("unexpected user %q", result.User.ID)
	}
}

func TestLoginUnknownUserAndWrongPasswordLookAlike(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	f := newAuthFixture(t, newStubUserRepo(user))

	_, unknownErr := f.svc.Login(context.Background(), LoginInput{Identifier: "ghost@example.com", Password: "whatever1!"})
	_, wrongErr := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: "wrong-password"})

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatal("both failures must be indistinguishable")
	}
}

func TestLoginRejectsPendingUser(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	user.Status = domain.UserStatusPending
	f := newAuthFixture(t, newStubUserRepo(user))

	_, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword})
	if !errors.Is(err, ErrAccountPending) {
		t.Fatalf("expected ErrAccountPending, got %v", err)
	}
}

func TestLoginReportsDisabledBeforeLocked(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	user.IsActive = false
	user.IsLocked = true
	f := newAuthFixture(t, newStubUserRepo(user))

	_, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword})
	if !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount for a disabled account, got %v", err)
	}
}

func TestLoginLocksAccountAfterRepeatedFailures(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	f := newAuthFixture(t, newStubUserRepo(user))

	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: "wrong-password"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: expected ErrInvalidCredentials, got %v", i, err)
		}
		var credsErr *InvalidCredentialsError
		if !errors.As(err, &credsErr) {
			t.Fatalf("failure %d: expected InvalidCredentialsError, got %v", i, err)
		}
		if want := 4 - i; credsErr.AttemptsRemaining != want {
			t.Fatalf("failure %d: expected %d attempts remaining, got %d", i, want, credsErr.AttemptsRemaining)
		}
	}

	// The fifth failure trips the lock and says so.
	_, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: "wrong-password"})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked on tripping attempt, got %v", err)
	}

	stored, _ := f.users.GetByID(context.Background(), "u1")
	if !stored.IsLocked || stored.LockedAt == nil {
		t.Fatal("account must be locked")
	}
	if len(f.publisher.locked) != 1 {
		t.Fatalf("expected 1 account locked event, got %d", len(f.publisher.locked))
	}
	if f.publisher.locked[0].FailedAttempts != 5 {
		t.Fatalf("locked event reports %d attempts", f.publisher.locked[0].FailedAttempts)
	}

	// The correct password no longer works.
	_, err = f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked after lock, got %v", err)
	}
}

func TestLoginSuccessResetsFailedCounter(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	user.FailedLoginCount = 3
	f := newAuthFixture(t, newStubUserRepo(user))

	if _, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword}); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	stored, _ := f.users.GetByID(context.Background(), "u1")
	if stored.FailedLoginCount != 0 {
		t.Fatalf("failed counter not reset, got %d", stored.FailedLoginCount)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	f := newAuthFixture(t, newStubUserRepo(user))

	login, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	refreshed, err := f.svc.Refresh(context.Background(), login.Tokens.RefreshToken, "203.0.113.7", "")
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if refreshed.Tokens.RefreshToken == login.Tokens.RefreshToken {
		t.Fatal("refresh must issue a different token")
	}
	if f.tokens.activeRefreshCount("u1") != 1 {
		t.Fatalf("expected exactly one active refresh token, got %d", f.tokens.activeRefreshCount("u1"))
	}
	if f.audit.countByType(domain.AuditTokenRefresh) != 1 {
		t.Fatal("expected a token_refresh audit event")
	}
}

func TestRefreshAppliesAccountGuards(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(u *domain.User)
		wantErr error
	}{
		{"disabled", func(u *domain.User) { u.IsActive = false }, ErrInactiveAccount},
		{"disabled and locked reports disabled", func(u *domain.User) { u.IsActive = false; u.IsLocked = true }, ErrInactiveAccount},
		{"locked", func(u *domain.User) { u.IsLocked = true }, ErrAccountLocked},
		{"demoted to pending", func(u *domain.User) { u.Status = domain.UserStatusPending }, ErrAccountPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
			users := newStubUserRepo(user)
			f := newAuthFixture(t, users)

			login, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword})
			if err != nil {
				t.Fatalf("Login returned error: %v", err)
			}

			tc.mutate(users.users["u1"])

			if _, err := f.svc.Refresh(context.Background(), login.Tokens.RefreshToken, "", ""); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRefreshReuseRevokesAllSessions(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	f := newAuthFixture(t, newStubUserRepo(user))

	login, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), login.Tokens.RefreshToken, "", ""); err != nil {
		t.Fatalf("first rotation failed: %v", err)
	}

	// Replaying the burned token is treated as theft.
	_, err = f.svc.Refresh(context.Background(), login.Tokens.RefreshToken, "", "")
	if !errors.Is(err, ErrRefreshTokenReused) {
		t.Fatalf("expected ErrRefreshTokenReused, got %v", err)
	}
	if f.tokens.activeRefreshCount("u1") != 0 {
		t.Fatalf("all sessions must be revoked, %d still active", f.tokens.activeRefreshCount("u1"))
	}
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	f := newAuthFixture(t, newStubUserRepo())

	_, err := f.svc.Refresh(context.Background(), "not-a-jwt", "", "")
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	f := newAuthFixture(t, newStubUserRepo(user))

	login, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	_, err = f.svc.Refresh(context.Background(), login.Tokens.AccessToken, "", "")
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("access token must not pass as refresh, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	f := newAuthFixture(t, newStubUserRepo(user))

	login, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := f.svc.Logout(context.Background(), login.Tokens.RefreshToken, "", ""); err != nil {
		t.Fatalf("first logout failed: %v", err)
	}
	if err := f.svc.Logout(context.Background(), login.Tokens.RefreshToken, "", ""); err != nil {
		t.Fatalf("repeated logout must succeed: %v", err)
	}
	if err := f.svc.Logout(context.Background(), "unknown-token", "", ""); err != nil {
		t.Fatalf("logout with unknown token must succeed: %v", err)
	}

	if f.tokens.activeRefreshCount("u1") != 0 {
		t.Fatal("refresh token must be revoked")
	}
	// Every logout call is audited, unknown tokens included.
	if got := f.audit.countByType(domain.AuditLogout); got != 3 {
		t.Fatalf("expected 3 logout audit events, got %d", got)
	}

	// A revoked token cannot be rotated; this is reuse, not a valid session.
	if _, err := f.svc.Refresh(context.Background(), login.Tokens.RefreshToken, "", ""); err == nil {
		t.Fatal("expected error refreshing after logout")
	}
}

func TestLoginRateLimited(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	f := newAuthFixture(t, newStubUserRepo(user))

	for i := 0; i < 10; i++ {
		if _, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword}); err != nil {
			t.Fatalf("attempt %d failed: %v", i, err)
		}
	}

	_, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword})
	var limitErr *RateLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected RateLimitExceededError, got %v", err)
	}
}

func TestValidateAccessTokenExpiry(t *testing.T) {
	user := verifiedUser("u1", "jordan@example.com", strongTestPassword)
	f := newAuthFixture(t, newStubUserRepo(user))

	login, err := f.svc.Login(context.Background(), LoginInput{Identifier: "jordan@example.com", Password: strongTestPassword})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	_, err = f.svc.ValidateAccessToken(login.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	if _, err := f.svc.ValidateAccessToken(login.Tokens.RefreshToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("refresh token must not pass as access, got %v", err)
	}
}
