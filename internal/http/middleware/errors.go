package middleware

import "github.com/gin-gonic/gin"

// abortError aborts the request with the standard API error body. The shape
// matches handlers.ErrorResponse, which cannot be imported from here.
func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"status":     "error",
		"code":       code,
		"request_id": RequestIDFrom(c),
	})
}
