package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/transport/http/middleware"
	"github.com/arklim/marketplace-auth/internal/usecase"
)

// AuthHandler exposes the signup, verification and token endpoints of one account kind.
type AuthHandler struct {
	auth *usecase.AuthService
	kind domain.AccountKind
}

// NewAuthHandler constructs AuthHandler for kind.
func NewAuthHandler(auth *usecase.AuthService, kind domain.AccountKind) *AuthHandler {
	return &AuthHandler{auth: auth, kind: kind}
}

// RegisterRoutes binds the per-kind routes onto r, which is expected to be /api/v1/auth/{kind}.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	optional := middleware.OptionalAuth(h.auth, h.kind)

	r.POST("/signup", h.signup)
	r.POST("/verify/email", optional, h.verify(domain.ChannelEmail))
	r.POST("/verify/phone", optional, h.verify(domain.ChannelPhone))
	r.POST("/resend/email", optional, h.resend(domain.ChannelEmail))
	r.POST("/resend/phone", optional, h.resend(domain.ChannelPhone))
	r.POST("/login", h.login)
	r.POST("/refresh", middleware.AllowExpired(h.auth, h.kind), h.refresh)
	r.POST("/logout", middleware.RequireAuth(h.auth, h.kind), h.logout)
}

func (h *AuthHandler) signup(c *gin.Context) {
	var req SignupRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Kind:     h.kind,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}

	resp := SignupResponse{User: result.Account, Message: result.Message}
	if len(result.DevCodes) > 0 {
		resp.DevCodes = make(map[string]string, len(result.DevCodes))
		for channel, code := range result.DevCodes {
			resp.DevCodes[channel.String()] = code
		}
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *AuthHandler) verify(channel domain.Channel) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyRequest
		if !bindJSON(c, &req) {
			return
		}

		result, err := h.auth.Verify(c.Request.Context(), usecase.VerifyInput{
			Kind:      h.kind,
			Channel:   channel,
			AccountID: middleware.GetAuthenticatedUserID(c),
			Email:     req.Email,
			Phone:     req.Phone,
			Code:      req.Code,
		})
		if err != nil {
			RespondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, VerifyResponse{User: result.Account, Message: result.Message})
	}
}

func (h *AuthHandler) resend(channel domain.Channel) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResendRequest
		if !bindJSON(c, &req) {
			return
		}

		result, err := h.auth.Resend(c.Request.Context(), usecase.ResendInput{
			Kind:      h.kind,
			Channel:   channel,
			AccountID: middleware.GetAuthenticatedUserID(c),
			UserID:    req.UserID,
			Email:     req.Email,
			Phone:     req.Phone,
		})
		if err != nil {
			RespondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, ResendResponse{Message: result.Message, DevCode: result.DevCode})
	}
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Kind:     h.kind,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		User:             result.Account,
		AccessToken:      result.AccessToken,
		RefreshToken:     result.RefreshToken,
		ExpiresInMinutes: result.ExpiresInMinutes,
		FullyVerified:    result.FullyVerified,
		Limited:          result.Limited,
		Message:          result.Message,
	})
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), usecase.RefreshInput{
		Kind:         h.kind,
		AccountID:    middleware.GetAuthenticatedUserID(c),
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{
		AccessToken:      result.AccessToken,
		ExpiresInMinutes: result.ExpiresInMinutes,
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	var req LogoutRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Logout(c.Request.Context(), usecase.LogoutInput{
		Kind:         h.kind,
		AccountID:    middleware.GetAuthenticatedUserID(c),
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: result.Message})
}

// VerifiedPing answers callers that passed RequireAuth and RequireVerified.
func VerifiedPing(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "Unauthorized"))
		return
	}

	c.JSON(http.StatusOK, VerifiedPingResponse{
		Message: "Verified access granted",
		User: PingIdentity{
			UID:      identity.Claims.AccountID,
			UserType: identity.Claims.AccountKind.String(),
			Limited:  identity.Claims.Limited,
		},
	})
}

// bindJSON decodes the body into dst. An empty body leaves dst zeroed so the use case can
// report which field is missing.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, NewErrorResponse(c, "Invalid request body"))
		return false
	}
	return true
}
