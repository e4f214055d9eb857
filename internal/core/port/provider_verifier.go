package port

import (
	"context"

	"github.com/courtbook/identity-service/internal/core/domain"
)

// ProviderIdentity is the verified identity asserted by an external provider token.
type ProviderIdentity struct {
	Provider   domain.AuthProvider
	ProviderID string
	Email      string
	FullName   string
}

// ProviderVerifier validates third-party identity tokens and extracts the asserted identity.
type ProviderVerifier interface {
	Verify(ctx context.Context, provider domain.AuthProvider, idToken string) (*ProviderIdentity, error)
}
