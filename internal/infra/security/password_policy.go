package security

import (
	"fmt"

	"github.com/courtbook/identity-service/internal/core/domain"
)

const (
	defaultMinPasswordLength   = 8
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 2
)

// DefaultPasswordValidator returns the built-in validator enforcing the service password policy
// with length, character class, and zxcvbn strength checks.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(defaultMinPasswordLength),
		RequireCharacterClassesRule(defaultMinCharacterClasses),
		RequirePasswordStrengthRule(defaultMinZxcvbnScore),
	)
}

// PasswordPolicy adapts the password validator to the domain-level policy interface.
type PasswordPolicy struct {
	factory func(inputs []string) *PasswordValidator
}

// NewPasswordPolicy builds a policy that accounts for contextual user inputs when validating passwords.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		factory: func(inputs []string) *PasswordValidator {
			return NewPasswordValidator(
				MinLengthRule(defaultMinPasswordLength),
				RequireCharacterClassesRule(defaultMinCharacterClasses),
				RequirePasswordStrengthRule(defaultMinZxcvbnScore, inputs...),
			)
		},
	}
}

// Validate applies the configured validator to ensure the password meets policy requirements.
func (p *PasswordPolicy) Validate(password string, ctx domain.PasswordContext) error {
	if p == nil || p.factory == nil {
		return fmt.Errorf("password policy not configured")
	}

	inputs := make([]string, 0, 3)
	if ctx.Email != "" {
		inputs = append(inputs, ctx.Email)
	}
	if ctx.Phone != "" {
		inputs = append(inputs, ctx.Phone)
	}
	if ctx.FullName != "" {
		inputs = append(inputs, ctx.FullName)
	}

	validator := p.factory(inputs)
	if validator == nil {
		return fmt.Errorf("password validator not configured")
	}

	return validator.Validate(password)
}
