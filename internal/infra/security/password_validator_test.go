package security

import (
	"errors"
	"testing"
)

func TestDefaultPolicyAcceptsDocumentedPassword(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyOptions{MinLength: 1})
	if err := policy.Validate("Secret123", "a@x.com"); err != nil {
		t.Fatalf("expected password to pass, got %v", err)
	}
	if err := policy.Validate(""); err == nil {
		t.Fatal("expected empty password to fail min length")
	}
}

func TestPasswordPolicyViolations(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyOptions{MinLength: 10, MinCharacterClasses: 3, MinStrengthScore: 3})

	assertViolation := func(password, expectedCode string) {
		t.Helper()
		err := policy.Validate(password, "vendor@example.com")
		var vErr *PasswordValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected PasswordValidationError for %q, got %v", password, err)
		}
		if vErr.Code != expectedCode {
			t.Fatalf("expected %s code, got %s", expectedCode, vErr.Code)
		}
	}

	assertViolation("Short1!", "min_length")
	assertViolation("lowercasepassword", "character_classes")
	assertViolation("Password123", "weak_password")

	if err := policy.Validate("C0mplex!Passphrase#2025"); err != nil {
		t.Fatalf("expected strong password to pass, got %v", err)
	}
}

func TestNilPolicyAllowsEverything(t *testing.T) {
	var policy *PasswordPolicy
	if err := policy.Validate(""); err != nil {
		t.Fatalf("expected nil policy to accept, got %v", err)
	}
}
