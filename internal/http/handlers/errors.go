// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via fail() and failFromError() in this package). These codes give
// clients a stable, machine-readable error taxonomy that supplements the
// human-readable message.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes mirror common HTTP status semantics.
//   - All error responses include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "error": "user does not own this article: article 4, user 9",
//	  "status": "error",
//	  "code": "forbidden",
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
)

// msgInternal is the only message clients see for unexpected failures.
const msgInternal = "An unexpected error occurred"
