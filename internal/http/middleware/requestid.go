package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

// Caller-supplied ids must be plain tokens.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._\-:]+$`)

// RequestID reuses a well-formed X-Request-ID from the client or generates a
// UUIDv4, then echoes it on the response and stores it in the Gin context.
// Install it first so every later log line and error body carries the id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLen || !requestIDPattern.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the id set by RequestID, or "" when absent.
func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
