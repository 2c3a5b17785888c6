package port

import "github.com/arklim/marketplace-auth/internal/core/domain"

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// TokenIssuer signs and validates access and refresh tokens.
type TokenIssuer interface {
	SignAccess(claims domain.TokenClaims) (string, error)
	SignRefresh(claims domain.TokenClaims, ttlDays int) (string, error)
	// Verify checks signature and structure. With allowExpired the expiry is not enforced
	// and VerifiedToken.Expired reports whether it has passed.
	Verify(token string, expected domain.TokenType, allowExpired bool) (*domain.VerifiedToken, error)
}
