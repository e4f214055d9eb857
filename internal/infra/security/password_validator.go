package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// PasswordValidationError is a single policy violation. Code is stable for
// API clients, Message is the human-readable form.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule checks one aspect of a candidate password.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a plain function to PasswordRule.
type PasswordRuleFunc func(password string) error

func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator runs rules in order and stops at the first violation, so
// callers always see the cheapest failing check first.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator builds a validator over the given rule chain.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// Validate reports the first violated rule, or nil.
func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}
	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return nil
}

func violation(code, message string) error {
	return &PasswordValidationError{Code: code, Message: message}
}

// MinLengthRule requires at least min runes, not bytes, so multibyte
// characters count once.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if len([]rune(password)) < min {
			return violation("min_length", fmt.Sprintf("password must be at least %d characters long", min))
		}
		return nil
	})
}

func classOf(r rune) int {
	switch {
	case unicode.IsUpper(r):
		return 0
	case unicode.IsLower(r):
		return 1
	case unicode.IsDigit(r):
		return 2
	case unicode.IsSymbol(r) || unicode.IsPunct(r):
		return 3
	default:
		return -1
	}
}

// RequireCharacterClassesRule requires characters from at least min of the
// four classes: upper, lower, digit, symbol.
func RequireCharacterClassesRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if min <= 0 {
			return nil
		}

		var seen [4]bool
		classes := 0
		for _, r := range password {
			if idx := classOf(r); idx >= 0 && !seen[idx] {
				seen[idx] = true
				classes++
				if classes >= min {
					return nil
				}
			}
		}

		return violation("character_classes", fmt.Sprintf("password must include at least %d character types", min))
	})
}

// RequireSymbolRule requires at least one symbol or punctuation character.
func RequireSymbolRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if classOf(r) == 3 {
				return nil
			}
		}
		return violation("symbol", "password must include at least one symbol")
	})
}

// RequireDifferentFrom rejects a password equal to the comparator, used when
// changing credentials to force an actual rotation.
func RequireDifferentFrom(comparator string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if password == comparator {
			return violation("different", "new password must be different from current password")
		}
		return nil
	})
}

// RequirePasswordStrengthRule rejects passwords scoring below minScore on
// zxcvbn's 0-4 scale. userInputs (email, name, phone) are penalized so users
// cannot reuse their own identifiers.
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		if zxcvbn.PasswordStrength(password, userInputs).Score >= minScore {
			return nil
		}

		return violation("weak_password", "password is too weak; choose a more complex value")
	})
}
