package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courtbook/identity-service/internal/infra/logger"
)

const (
	// RequestIDHeader carries the correlation identifier. Inbound values are
	// honored so a gateway in front of the service can stamp its own.
	RequestIDHeader = "X-Request-ID"

	requestIDKey   = "request_id"
	requestMetaKey = "request_meta"

	// UserIDKey is the gin context key RequireAuth stores the subject under.
	UserIDKey = "user_id"
)

// RequestMeta is the per-request client snapshot shared by handlers and the
// access log. UserID is filled in once RequireAuth has validated the bearer.
type RequestMeta struct {
	RequestID string
	UserID    string
	IP        string
	UserAgent string
}

// EnrichContext assigns the request its correlation identifier and client
// snapshot. The identifier is echoed in the response header and planted in
// the request context so downstream log lines pick it up.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		c.Writer.Header().Set(RequestIDHeader, reqID)
		c.Set(requestIDKey, reqID)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID),
		)

		c.Set(requestMetaKey, &RequestMeta{
			RequestID: reqID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Next()
	}
}

// GetRequestID returns the correlation identifier for the request, or "" when
// EnrichContext did not run.
func GetRequestID(c *gin.Context) string {
	if v, exists := c.Get(requestIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestMeta returns the client snapshot, never nil.
func GetRequestMeta(c *gin.Context) *RequestMeta {
	if v, exists := c.Get(requestMetaKey); exists {
		if meta, ok := v.(*RequestMeta); ok {
			return meta
		}
	}
	return &RequestMeta{}
}
