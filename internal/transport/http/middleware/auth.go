package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/marketplace-auth/internal/core/domain"
)

// IdentityKey is the gin context key holding the *domain.VerifiedToken of the caller.
const IdentityKey = "identity"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, message string) ErrorResponse {
	return ErrorResponse{
		Message: message,
		TraceID: GetTraceID(c),
	}
}

// Authenticator validates bearer access tokens. An empty kind accepts any account kind.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string, kind domain.AccountKind, allowExpired bool) (*domain.VerifiedToken, error)
}

type bearerMode int

const (
	bearerRequired bearerMode = iota
	bearerOptional
	bearerAllowExpired
)

// RequireAuth rejects requests without a valid, unexpired access token of the given kind.
func RequireAuth(auth Authenticator, kind domain.AccountKind) gin.HandlerFunc {
	return bearer(auth, kind, bearerRequired)
}

// OptionalAuth attaches the caller identity when a bearer token is present. A malformed or
// foreign token is still rejected.
func OptionalAuth(auth Authenticator, kind domain.AccountKind) gin.HandlerFunc {
	return bearer(auth, kind, bearerOptional)
}

// AllowExpired behaves like RequireAuth but accepts a correctly signed token past its expiry.
func AllowExpired(auth Authenticator, kind domain.AccountKind) gin.HandlerFunc {
	return bearer(auth, kind, bearerAllowExpired)
}

func bearer(auth Authenticator, kind domain.AccountKind, mode bearerMode) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && mode == bearerOptional {
			c.Next()
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "Missing or invalid authorization header"))
			return
		}

		identity, err := auth.Authenticate(c.Request.Context(), token, kind, mode == bearerAllowExpired)
		if err != nil {
			status, message := http.StatusInternalServerError, "authentication failed"
			var failure *domain.Failure
			if errors.As(err, &failure) {
				status, message = failure.Status(), failure.Error()
			}
			c.AbortWithStatusJSON(status, newErrorResponse(c, message))
			return
		}

		c.Set(IdentityKey, identity)
		c.Set(UserIDKey, identity.Claims.AccountID)
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = identity.Claims.AccountID
		}

		c.Next()
	}
}

// RequireVerified must follow RequireAuth. It admits only accounts whose token says both
// channels are verified.
func RequireVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "Unauthorized"))
			return
		}
		if !identity.Claims.FullyVerified {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "Account not fully verified. Please verify email and phone."))
			return
		}
		c.Next()
	}
}

// GetIdentity returns the token attached by one of the bearer middlewares.
func GetIdentity(c *gin.Context) (*domain.VerifiedToken, bool) {
	value, exists := c.Get(IdentityKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*domain.VerifiedToken)
	return identity, ok && identity != nil
}

// GetAuthenticatedUserID retrieves the account ID from context, or "" when anonymous.
func GetAuthenticatedUserID(c *gin.Context) string {
	if identity, ok := GetIdentity(c); ok {
		return identity.Claims.AccountID
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
