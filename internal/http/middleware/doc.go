// Package middleware holds the Gin middleware in front of the articles API:
// request correlation, access logging (plain or redacting), panic recovery,
// Prometheus instrumentation, idempotency-key validation, per-identity rate
// limiting, and security headers.
//
// Middleware that rejects a request writes the same error envelope as the
// handlers package:
//
//	{"error": "...", "status": "error", "code": "...", "request_id": "..."}
package middleware
