// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints:
// the error envelope, the mapping from service errors to HTTP statuses, and
// small helpers for success responses.
//
// Conventions:
//   - All error responses return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error formatting and logs 5xx responses with the
//     request-scoped logger.
//   - `failFromError()` maps service sentinels (via errors.Is) so handlers
//     never switch on error strings.
//   - Unexpected errors are logged with full detail but reported to clients
//     with a generic message.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "error": "article not found: id=12",
//	  "status": "error",
//	  "code": "not_found",
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-article-webhooks/internal/http/middleware"
	"github.com/tbourn/go-article-webhooks/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Human-readable message (safe to show to users)
	Error string `json:"error" example:"article not found: id=12"`
	// Always "error"
	Status string `json:"status" example:"error"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	rid := middleware.RequestIDFrom(c)
	if rid == "" {
		rid = c.Writer.Header().Get("X-Request-ID")
	}
	resp := ErrorResponse{Error: msg, Status: "error", Code: code, RequestID: rid}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("reason", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for router-level handlers
// (NoRoute, NoMethod).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failFromError maps a service error to its HTTP representation.
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrArticleNotFound),
		errors.Is(err, services.ErrSubscriptionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrNotOwner):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrInvalidArticle),
		errors.Is(err, services.ErrInvalidSubscription):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, msgInternal)
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
