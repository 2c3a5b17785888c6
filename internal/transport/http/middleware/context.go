package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/arklim/marketplace-auth/internal/infra/logger"
)

const (
	TraceIDHeader   = "X-Trace-ID"
	RequestIDHeader = "X-Request-ID"

	TraceIDKey = "trace_id"
	// UserIDKey holds the authenticated account ID.
	UserIDKey = "user_id"

	requestContextKey = "request_context"
	maxCorrelationLen = 128
)

// RequestContext is the per-request metadata shared by the access log and the bearer middlewares.
type RequestContext struct {
	TraceID   string
	UserID    string
	IP        string
	UserAgent string
}

// EnrichContext assigns the trace ID of the request. An active span wins over the X-Trace-ID
// header, and a fresh UUID is used when neither is usable.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := ""
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = correlationID(c.GetHeader(TraceIDHeader))
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Set(requestContextKey, &RequestContext{
			TraceID:   traceID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Next()
	}
}

// RequestID echoes X-Request-ID and stores it on the request context for logger.WithContext.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := correlationID(c.GetHeader(RequestIDHeader))
		c.Header(RequestIDHeader, reqID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID))
		c.Next()
	}
}

// correlationID accepts a caller supplied ID only when it is short and printable.
func correlationID(candidate string) string {
	if candidate == "" || len(candidate) > maxCorrelationLen {
		return uuid.NewString()
	}
	for _, r := range candidate {
		if r < 0x21 || r > 0x7e {
			return uuid.NewString()
		}
	}
	return candidate
}

func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// GetRequestContext returns nil outside EnrichContext.
func GetRequestContext(c *gin.Context) *RequestContext {
	value, exists := c.Get(requestContextKey)
	if !exists {
		return nil
	}
	reqCtx, _ := value.(*RequestContext)
	return reqCtx
}
