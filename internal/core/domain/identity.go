package domain

import "time"

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusPending  UserStatus = "pending"
	UserStatusVerified UserStatus = "verified"
)

// AuthProvider identifies an external identity provider.
type AuthProvider string

const (
	AuthProviderGoogle   AuthProvider = "google"
	AuthProviderFacebook AuthProvider = "facebook"
)

// ProviderLink records a federated identity attached to a user.
type ProviderLink struct {
	ProviderID string `json:"provider_id"`
	Email      string `json:"email,omitempty"`
}

// User mirrors the persisted representation in the users table.
type User struct {
	ID               string
	Email            string
	Phone            *string
	PasswordHash     *string
	FullName         string
	Status           UserStatus
	IsActive         bool
	IsLocked         bool
	FailedLoginCount int
	LockedAt         *time.Time
	AuthProviders    map[AuthProvider]ProviderLink
	RegisteredAt     time.Time
	LastLogin        *time.Time
}

// Sanitized returns a copy safe to hand back to callers.
func (u User) Sanitized() User {
	u.PasswordHash = nil
	return u
}

// PasswordContext carries the user attributes a password must not resemble.
type PasswordContext struct {
	Email    string
	Phone    string
	FullName string
}

// VerificationCode is a single OTP challenge issued to a user.
type VerificationCode struct {
	ID          string
	UserID      string
	Code        string
	Channel     OTPChannel
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
}

// Active reports whether the code can still be redeemed at the given instant.
func (c VerificationCode) Active(now time.Time) bool {
	return c.ConsumedAt == nil && now.Before(c.ExpiresAt)
}

// OTPChannel names the delivery channel of a verification code.
type OTPChannel string

const (
	OTPChannelEmail OTPChannel = "email"
	OTPChannelSMS   OTPChannel = "sms"
)

// RefreshToken represents a persisted refresh token (stored as a hash).
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	IP        *string
	UserAgent *string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// PasswordResetToken represents a single-use password reset token hash.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	IP        *string
	UserAgent *string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}
