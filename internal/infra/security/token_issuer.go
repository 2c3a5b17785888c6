package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/arklim/marketplace-auth/internal/core/domain"
)

var (
	// ErrInvalidToken covers bad signatures, malformed tokens, wrong token types and expiry.
	ErrInvalidToken = errors.New("jwt: invalid token")
	// ErrKeyIDMissing indicates an RS256 token without a kid header.
	ErrKeyIDMissing = errors.New("jwt: missing key identifier")
)

// TokenIssuerOptions configures a TokenIssuer. KeyProvider selects RS256; otherwise Secret is
// used with HS256.
type TokenIssuerOptions struct {
	Secret      string
	KeyProvider KeyProvider
	Issuer      string
	Clock       func() time.Time
}

// TokenIssuer signs and validates access and refresh tokens.
type TokenIssuer struct {
	method jwt.SigningMethod
	secret []byte
	keys   KeyProvider
	issuer string
	now    func() time.Time
}

type accountClaims struct {
	UserID        string `json:"uid"`
	UserType      string `json:"userType"`
	EmailVerified bool   `json:"emailVerified"`
	PhoneVerified bool   `json:"phoneVerified"`
	FullyVerified bool   `json:"fullyVerified"`
	Limited       bool   `json:"limited"`
	TokenType     string `json:"typ"`
	jwt.RegisteredClaims
}

// NewTokenIssuer validates opts and builds an issuer.
func NewTokenIssuer(opts TokenIssuerOptions) (*TokenIssuer, error) {
	issuer := &TokenIssuer{
		issuer: strings.TrimSpace(opts.Issuer),
		now:    opts.Clock,
	}
	if issuer.now == nil {
		issuer.now = time.Now
	}

	switch {
	case opts.KeyProvider != nil:
		issuer.method = jwt.SigningMethodRS256
		issuer.keys = opts.KeyProvider
	case strings.TrimSpace(opts.Secret) != "":
		issuer.method = jwt.SigningMethodHS256
		issuer.secret = []byte(opts.Secret)
	default:
		return nil, errors.New("jwt: secret or key provider is required")
	}

	return issuer, nil
}

// SignAccess signs claims into an access token valid for domain.AccessTokenTTL.
func (i *TokenIssuer) SignAccess(claims domain.TokenClaims) (string, error) {
	return i.sign(claims, domain.TokenTypeAccess, domain.AccessTokenTTL)
}

// SignRefresh signs claims into a refresh token valid for ttlDays days.
func (i *TokenIssuer) SignRefresh(claims domain.TokenClaims, ttlDays int) (string, error) {
	if ttlDays <= 0 {
		return "", fmt.Errorf("jwt: refresh ttl must be positive, got %d days", ttlDays)
	}
	return i.sign(claims, domain.TokenTypeRefresh, time.Duration(ttlDays)*24*time.Hour)
}

func (i *TokenIssuer) sign(claims domain.TokenClaims, typ domain.TokenType, ttl time.Duration) (string, error) {
	if strings.TrimSpace(claims.AccountID) == "" {
		return "", errors.New("jwt: account id is required")
	}

	now := i.now().UTC()
	payload := accountClaims{
		UserID:        claims.AccountID,
		UserType:      claims.AccountKind.String(),
		EmailVerified: claims.EmailVerified,
		PhoneVerified: claims.PhoneVerified,
		FullyVerified: claims.FullyVerified,
		Limited:       claims.Limited,
		TokenType:     string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.AccountID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(i.method, payload)

	var key any = i.secret
	if i.keys != nil {
		kid, signingKey, err := i.keys.GetSigningKey()
		if err != nil {
			return "", fmt.Errorf("jwt: get signing key: %w", err)
		}
		token.Header["kid"] = kid
		key = signingKey
	}

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, structure and token type. With allowExpired the expiry is not
// enforced and the returned Expired flag reports whether it has passed.
func (i *TokenIssuer) Verify(raw string, expected domain.TokenType, allowExpired bool) (*domain.VerifiedToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(i.issuer))
	}
	if allowExpired {
		parserOpts = append(parserOpts, jwt.WithoutClaimsValidation())
	}

	var claims accountClaims
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(raw, &claims, i.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.TokenType != string(expected) {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, expected)
	}
	kind, ok := domain.ParseAccountKind(claims.UserType)
	if !ok || claims.UserID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: incomplete claims", ErrInvalidToken)
	}
	if allowExpired && i.issuer != "" && claims.Issuer != i.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}

	verified := &domain.VerifiedToken{
		Type: domain.TokenType(claims.TokenType),
		Claims: domain.TokenClaims{
			AccountID:     claims.UserID,
			AccountKind:   kind,
			EmailVerified: claims.EmailVerified,
			PhoneVerified: claims.PhoneVerified,
			FullyVerified: claims.FullyVerified,
			Limited:       claims.Limited,
		},
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		Expired:   !i.now().Before(claims.ExpiresAt.Time),
	}
	if claims.IssuedAt != nil {
		verified.IssuedAt = claims.IssuedAt.Time
	}

	return verified, nil
}

func (i *TokenIssuer) keyFunc(token *jwt.Token) (any, error) {
	if i.keys == nil {
		return i.secret, nil
	}
	kid, _ := token.Header["kid"].(string)
	if strings.TrimSpace(kid) == "" {
		return nil, ErrKeyIDMissing
	}
	return i.keys.GetVerificationKey(kid)
}

// JWKS produces the JSON Web Key Set for RS256 verification keys. It is empty for HS256.
func (i *TokenIssuer) JWKS() ([]byte, error) {
	keys := make([]map[string]string, 0)
	if i.keys != nil {
		for kid, key := range i.keys.ListVerificationKeys() {
			if key == nil {
				continue
			}
			keys = append(keys, buildJWK(kid, key))
		}
	}
	return json.Marshal(map[string]any{"keys": keys})
}

func buildJWK(kid string, key *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
