package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/transport/http/middleware"
)

// ErrorResponse is the generic error payload. The request id links the
// response back to the server-side log lines.
type ErrorResponse struct {
	Error             string `json:"error"`
	RequestID         string `json:"request_id,omitempty"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
}

// NewErrorResponse builds an error payload carrying the request's correlation id.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:     errorMsg,
		RequestID: middleware.GetRequestID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes the account view returned by the API.
type UserSummary struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	Phone        *string           `json:"phone,omitempty"`
	FullName     string            `json:"full_name"`
	Status       domain.UserStatus `json:"status"`
	RegisteredAt time.Time         `json:"registered_at"`
	LastLogin    *time.Time        `json:"last_login,omitempty"`
}

func userSummaryFrom(user domain.User) UserSummary {
	return UserSummary{
		ID:           user.ID,
		Email:        user.Email,
		Phone:        user.Phone,
		FullName:     user.FullName,
		Status:       user.Status,
		RegisteredAt: user.RegisteredAt,
		LastLogin:    user.LastLogin,
	}
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"omitempty"`
	FullName string `json:"full_name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// RegistrationResponse contains registration results and next steps.
type RegistrationResponse struct {
	User                 UserSummary `json:"user"`
	RequiresVerification bool        `json:"requires_verification"`
	Delivery             string      `json:"delivery"`
	ExpiresAt            time.Time   `json:"expires_at"`
}

// VerifyRequest holds the OTP verification payload.
type VerifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// VerifyResponse is returned after a successful verification.
type VerifyResponse struct {
	Message string      `json:"message"`
	User    UserSummary `json:"user"`
}

// ResendRequest asks for a replacement verification code.
type ResendRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResendResponse reports the reissued challenge.
type ResendResponse struct {
	Message   string    `json:"message"`
	Delivery  string    `json:"delivery"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest defines the payload for the login endpoint. Identifier
// accepts either the registered email address or phone number.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// SocialLoginRequest carries a provider-issued identity token.
type SocialLoginRequest struct {
	Provider string `json:"provider" binding:"required"`
	IDToken  string `json:"id_token" binding:"required"`
}

// TokenResponse describes an issued token pair.
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	User         *UserSummary `json:"user,omitempty"`
}

// RefreshRequest represents the payload to rotate a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest revokes the supplied refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ForgotPasswordRequest starts password recovery for the given address.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest finishes password recovery.
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// ChangePasswordRequest updates the password of the authenticated user.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// AuditEventView is a single entry of the account activity feed.
type AuditEventView struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	IP        *string        `json:"ip,omitempty"`
	UserAgent *string        `json:"user_agent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}
