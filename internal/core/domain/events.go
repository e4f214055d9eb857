package domain

import "time"

// UserRegisteredEvent represents the payload for auth.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        *string
	Phone        *string
	FullName     string
	Status       string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// UserVerifiedEvent represents the payload for auth.user.verified messages.
type UserVerifiedEvent struct {
	EventID    string
	UserID     string
	Channel    string
	VerifiedAt time.Time
	Metadata   map[string]any
}

// PasswordChangedEvent represents the payload for auth.user.password.changed messages.
type PasswordChangedEvent struct {
	EventID   string
	UserID    string
	ChangedAt time.Time
	Reason    string
	Metadata  map[string]any
}

// PasswordResetRequestedEvent represents the payload for auth.user.password.reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	UserID            string
	RequestedAt       time.Time
	MaskedDestination string
	ExpiresAt         time.Time
	IPAddress         *string
	Metadata          map[string]any
}

// AccountLockedEvent represents the payload for auth.user.account.locked messages.
type AccountLockedEvent struct {
	EventID        string
	UserID         string
	LockedAt       time.Time
	FailedAttempts int
	IPAddress      *string
	Metadata       map[string]any
}
