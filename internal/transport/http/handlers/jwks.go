package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const jwksCacheControl = "public, max-age=3600"

// KeySetSource renders the public signing keys as a JWKS document.
type KeySetSource interface {
	JWKS() ([]byte, error)
}

// JWKSHandler publishes the RS256 verification keys so other services can check access tokens offline.
type JWKSHandler struct {
	source KeySetSource
}

func NewJWKSHandler(source KeySetSource) *JWKSHandler {
	return &JWKSHandler{source: source}
}

// Keys serves /.well-known/jwks.json.
func (h *JWKSHandler) Keys(c *gin.Context) {
	if h == nil || h.source == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "jwks not available"))
		return
	}

	payload, err := h.source.JWKS()
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to render jwks"))
		return
	}

	c.Header("Cache-Control", jwksCacheControl)
	c.Data(http.StatusOK, "application/json", payload)
}
