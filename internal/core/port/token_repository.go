package port

import (
	"context"
	"time"

	"github.com/courtbook/identity-service/internal/core/domain"
)

// TokenRepository manages refresh and password reset token records.
type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	// RevokeRefreshToken revokes the token only if it is still active and
	// reports whether this call performed the revocation.
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) (bool, error)
	RevokeRefreshTokensForUser(ctx context.Context, userID string, revokedAt time.Time) (int, error)
	CreatePasswordReset(ctx context.Context, token domain.PasswordResetToken) error
	GetPasswordResetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error)
	// ConsumePasswordReset marks the token used only if it has not been used
	// yet and reports whether this call consumed it.
	ConsumePasswordReset(ctx context.Context, id string, usedAt time.Time) (bool, error)
	InvalidatePasswordResetsForUser(ctx context.Context, userID string, invalidatedAt time.Time) error
}
