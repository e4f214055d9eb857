package domain

import "time"

// AuditEventType enumerates the lifecycle transitions captured in the audit trail.
type AuditEventType string

const (
	AuditRegister               AuditEventType = "register"
	AuditVerifySuccess          AuditEventType = "verify_success"
	AuditVerifyFailed           AuditEventType = "verify_failed"
	AuditResendOTP              AuditEventType = "resend_otp"
	AuditLoginSuccess           AuditEventType = "login_success"
	AuditLoginFailed            AuditEventType = "login_failed"
	AuditLogout                 AuditEventType = "logout"
	AuditTokenRefresh           AuditEventType = "token_refresh"
	AuditPasswordResetRequested AuditEventType = "password_reset_requested"
	AuditPasswordReset          AuditEventType = "password_reset"
	AuditPasswordChanged        AuditEventType = "password_changed"
)

// AuditEvent is a single append-only forensic record. It is never read back
// by business logic.
type AuditEvent struct {
	ID        string
	UserID    *string
	EventType AuditEventType
	Email     *string
	Phone     *string
	IP        *string
	UserAgent *string
	Metadata  map[string]any
	CreatedAt time.Time
}
