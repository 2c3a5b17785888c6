package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// PasswordValidationError is the first policy rule a registration password broke.
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

// PasswordPolicyOptions configures the registration password policy. Zero values disable a rule.
type PasswordPolicyOptions struct {
	MinLength           int
	MinCharacterClasses int
	// MinStrengthScore is a zxcvbn score between 0 and 4.
	MinStrengthScore int
}

// PasswordPolicy checks length, character variety and zxcvbn strength, in that order.
type PasswordPolicy struct {
	opts PasswordPolicyOptions
}

func NewPasswordPolicy(opts PasswordPolicyOptions) *PasswordPolicy {
	if opts.MinStrengthScore > 4 {
		opts.MinStrengthScore = 4
	}
	return &PasswordPolicy{opts: opts}
}

// Validate returns a *PasswordValidationError for the first violated rule. userInputs are account
// fields (name, email, phone) the password must not be built from. A nil policy accepts anything.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if p == nil {
		return nil
	}

	if n := len([]rune(password)); n < p.opts.MinLength {
		return &PasswordValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", p.opts.MinLength),
		}
	}

	if p.opts.MinCharacterClasses > 0 && characterClasses(password) < p.opts.MinCharacterClasses {
		return &PasswordValidationError{
			Code:    "character_classes",
			Message: fmt.Sprintf("password must include at least %d character types", p.opts.MinCharacterClasses),
		}
	}

	if p.opts.MinStrengthScore > 0 && zxcvbn.PasswordStrength(password, userInputs).Score < p.opts.MinStrengthScore {
		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	}

	return nil
}

// characterClasses counts the distinct classes among upper, lower, digit and symbol.
func characterClasses(password string) int {
	var seen [4]bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			seen[0] = true
		case unicode.IsLower(r):
			seen[1] = true
		case unicode.IsDigit(r):
			seen[2] = true
		case unicode.IsSymbol(r) || unicode.IsPunct(r):
			seen[3] = true
		}
	}

	classes := 0
	for _, ok := range seen {
		if ok {
			classes++
		}
	}
	return classes
}
