package port

import "github.com/courtbook/identity-service/internal/core/domain"

// PasswordPolicyValidator decides whether a candidate password is acceptable
// for the identity described by the context.
type PasswordPolicyValidator interface {
	Validate(password string, ctx domain.PasswordContext) error
}

// Argon2Params tunes the Argon2id hasher. Values come from configuration so
// deployments can trade memory for latency.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordHasher derives and checks password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}
