package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

const (
	otpCodeMin = 100000
	otpCodeMax = 999999
)

// GenerateOTPCode returns a uniformly distributed six digit code in [100000, 999999].
func GenerateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpCodeMax-otpCodeMin+1))
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+otpCodeMin, 10), nil
}
