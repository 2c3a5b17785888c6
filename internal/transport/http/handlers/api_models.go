package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/transport/http/middleware"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
	// AttemptsLeft is reported for a wrong verification code.
	AttemptsLeft *int   `json:"attemptsLeft,omitempty"`
	TraceID      string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with the request trace ID.
func NewErrorResponse(c *gin.Context, message string) ErrorResponse {
	return ErrorResponse{
		Message: message,
		TraceID: middleware.GetTraceID(c),
	}
}

// SignupRequest is accepted by POST /signup. Password is optional for customers.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// SignupResponse returns the sanitized account and the OTP delivery note.
type SignupResponse struct {
	User     domain.AccountView `json:"user"`
	Message  string             `json:"message"`
	DevCodes map[string]string  `json:"devCodes,omitempty"`
}

// VerifyRequest carries a code for the channel named in the path.
type VerifyRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type VerifyResponse struct {
	User    domain.AccountView `json:"user"`
	Message string             `json:"message"`
}

// ResendRequest identifies the account by id or by destination.
type ResendRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

type ResendResponse struct {
	Message string `json:"message"`
	DevCode string `json:"devCode,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User             domain.AccountView `json:"user"`
	AccessToken      string             `json:"accessToken"`
	RefreshToken     string             `json:"refreshToken"`
	ExpiresInMinutes int                `json:"expiresInMinutes"`
	FullyVerified    bool               `json:"fullyVerified"`
	Limited          bool               `json:"limited"`
	Message          string             `json:"message"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken      string `json:"accessToken"`
	ExpiresInMinutes int    `json:"expiresInMinutes"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ApprovalRequest sets the confirmedAccount flag of a vendor or driver.
type ApprovalRequest struct {
	Confirmed *bool `json:"confirmed"`
}

type ApprovalResponse struct {
	User domain.AccountView `json:"user"`
}

// VerifiedPingResponse answers the verified-only probe.
type VerifiedPingResponse struct {
	Message string       `json:"message"`
	User    PingIdentity `json:"user"`
}

type PingIdentity struct {
	UID      string `json:"uid"`
	UserType string `json:"userType"`
	Limited  bool   `json:"limited"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    float64   `json:"uptime"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
