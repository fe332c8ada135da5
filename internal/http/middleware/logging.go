package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	loggerKey         = "logger"
	maxQueryLogLength = 2048
)

// Logger emits one structured access log line per request and attaches a
// request-scoped logger (request_id, method, route) to both the Gin context
// and the request context, so handlers use LoggerFrom and services use
// zerolog.Ctx with the same fields.
//
// Level: error for 5xx or when handlers recorded c.Errors, warn for 4xx,
// info otherwise.
func Logger() gin.HandlerFunc {
	return accessLog(nil)
}

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders lists extra header names whose values are replaced
	// entirely. Authorization, Cookie and Set-Cookie are always masked.
	MaskHeaders []string
	// MaskParams lists extra query parameter names whose values are
	// replaced. Common credential names are always masked.
	MaskParams []string
}

// RedactingLogger is Logger with PII scrubbing: request headers are logged
// with masked values, sensitive query parameters are blanked, and e-mail
// addresses and URL credentials are removed from whatever remains. Client
// address and user agent are not logged.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	return accessLog(newRedactor(opts))
}

func accessLog(rd *redactor) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("route", route).
			Logger()
		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		query := truncate(c.Request.URL.RawQuery, maxQueryLogLength)
		var headers map[string]string
		if rd != nil {
			query = rd.query(query)
			headers = rd.headers(c.Request.Header)
		}

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = l.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = l.Warn()
		default:
			ev = l.Info()
		}

		ev = ev.Str("path", c.Request.URL.Path).
			Str("query", query).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size())
		if rd == nil {
			ev = ev.Str("remote_ip", c.ClientIP()).Str("user_agent", c.Request.UserAgent())
		} else {
			ev = ev.Interface("headers", headers)
		}
		ev.Msg("http_request")
	}
}

// Recovery turns a handler panic into the standard 500 envelope and logs the
// panic value with its stack. Install it after the access logger so the
// panic line carries the request fields.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ev := LoggerFrom(c).Error()
			if _, scoped := c.Get(loggerKey); !scoped {
				ev = ev.Str("request_id", RequestIDFrom(c))
			}
			ev.Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortError(c, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// no access logger ran.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.Logger
	return &l
}

// truncate caps s at max bytes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
