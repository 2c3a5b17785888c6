package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/usecase"
)

// ApprovalHandler lets operators flip the confirmedAccount flag of vendors and drivers.
type ApprovalHandler struct {
	auth *usecase.AuthService
}

func NewApprovalHandler(auth *usecase.AuthService) *ApprovalHandler {
	return &ApprovalHandler{auth: auth}
}

// RegisterRoutes binds PATCH /{kind}/{id}/approval onto r.
func (h *ApprovalHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.PATCH("/:kind/:id/approval", h.setApproval)
}

func (h *ApprovalHandler) setApproval(c *gin.Context) {
	kind, ok := domain.ParseAccountKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "Invalid user type"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "id required"))
		return
	}

	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Confirmed == nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "confirmed required"))
		return
	}

	view, err := h.auth.SetApproval(c.Request.Context(), kind, id, *req.Confirmed)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ApprovalResponse{User: *view})
}
