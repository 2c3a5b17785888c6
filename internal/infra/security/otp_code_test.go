package security

import (
	"strconv"
	"testing"
)

func TestGenerateOTPCodeRange(t *testing.T) {
	for i := 0; i < 2000; i++ {
		code, err := GenerateOTPCode()
		if err != nil {
			t.Fatalf("GenerateOTPCode returned error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("expected ascii digits, got %q", code)
			}
		}
		n, _ := strconv.Atoi(code)
		if n < otpCodeMin || n > otpCodeMax {
			t.Fatalf("code %d out of range", n)
		}
	}
}
