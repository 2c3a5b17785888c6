package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminKeyHeader carries the shared operator key for approval endpoints.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey admits requests whose X-Admin-Key equals key. An empty key rejects everything.
func RequireAdminKey(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		supplied := []byte(c.GetHeader(AdminKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(supplied, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "Unauthorized"))
			return
		}
		c.Next()
	}
}
