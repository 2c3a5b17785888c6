package domain

import "time"

// AccessTokenTTL is the fixed lifetime of access tokens.
const AccessTokenTTL = 15 * time.Minute

// TokenType distinguishes the two token kinds issued by the service.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenClaims is the identity payload embedded in access and refresh tokens.
type TokenClaims struct {
	AccountID     string
	AccountKind   AccountKind
	EmailVerified bool
	PhoneVerified bool
	FullyVerified bool
	Limited       bool
}

// ClaimsFor derives token claims from the current account state.
func ClaimsFor(account Account) TokenClaims {
	return TokenClaims{
		AccountID:     account.ID,
		AccountKind:   account.Kind,
		EmailVerified: account.EmailVerified,
		PhoneVerified: account.PhoneVerified,
		FullyVerified: account.FullyVerified(),
		Limited:       account.Limited(),
	}
}

// VerifiedToken is the result of validating a signed token.
// Expired is only meaningful when the token was parsed with expiry enforcement disabled.
type VerifiedToken struct {
	Type      TokenType
	Claims    TokenClaims
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Expired   bool
}

// RefreshTokenEntry is one outstanding refresh token held in an account's ledger.
type RefreshTokenEntry struct {
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether the entry is still usable at the supplied instant.
func (e RefreshTokenEntry) Live(at time.Time) bool {
	return e.ExpiresAt.After(at)
}
