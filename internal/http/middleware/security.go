package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS bool          // only when TLS terminates in front of or at this process
	HSTSMaxAge time.Duration // <= 0 means 180 days
	NoStore    bool          // Cache-Control: no-store on every response

	// EnablePolicy adds Permissions-Policy and a deny-all
	// Content-Security-Policy suited to a JSON API.
	EnablePolicy bool
	// PolicyExemptPrefixes skips the CSP for HTML pages such as the
	// Swagger UI, which needs scripts and styles.
	PolicyExemptPrefixes []string
}

type header struct{ name, value string }

// SecurityHeaders sets conservative response headers. The header set is
// computed once; only the HSTS and CSP decisions depend on the request.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := []header{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		static = append(static,
			header{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			header{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}
	if opt.NoStore {
		static = append(static, header{"Cache-Control", "no-store"})
	}

	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range static {
			h.Set(kv.name, kv.value)
		}
		if opt.EnablePolicy && !hasAnyPrefix(c.Request.URL.Path, opt.PolicyExemptPrefixes) {
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

// isHTTPS reports a TLS connection, directly or via X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
