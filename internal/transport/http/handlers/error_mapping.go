package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/marketplace-auth/internal/core/domain"
)

const internalErrorMessage = "Server error"

// RespondWithError writes err as an ErrorResponse. Failures carry their own status and message;
// anything else is reported as a 500 and attached to the gin context for the access log.
func RespondWithError(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var failure *domain.Failure
	if errors.As(err, &failure) {
		body := NewErrorResponse(c, failure.Error())
		if failure.Kind == domain.FailureOTPMismatch {
			left := failure.AttemptsLeft
			body.AttemptsLeft = &left
		}
		c.AbortWithStatusJSON(failure.Status(), body)
		return
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, NewErrorResponse(c, internalErrorMessage))
}
