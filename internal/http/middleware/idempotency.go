package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key on POST /articles.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts key characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Routes lists the full route paths (gin FullPath) whose POSTs may be
	// replays. The lookup runs only there.
	Routes []string
}

// IdempotencyLookup reports whether a live record exists for (userID, key).
// Errors are logged and treated as a miss.
type IdempotencyLookup func(ctx context.Context, userID int64, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator checks the Idempotency-Key header on POST requests.
// Other methods ignore the header.
//
//   - absent: no-op
//   - malformed: 400 bad_idempotency_key
//   - valid: stored for GetIdempotencyKey; on one of opts.Routes, when the
//     body's userId owns a live record for the key, the request is flagged as
//     a replay and exempted from rate limiting
//
// The handler still serves the replay; nothing is answered from here.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	routes := make(map[string]struct{}, len(opts.Routes))
	for _, r := range opts.Routes {
		routes[r] = struct{}{}
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortError(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if _, ok := routes[c.FullPath()]; !ok || lookup == nil {
			c.Next()
			return
		}
		if userID, ok := peekUserID(c); ok {
			exists, err := lookup(c.Request.Context(), userID, key, time.Now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			case exists:
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// peekUserID reads the JSON body's userId and rewinds the body for the
// handler. Read errors (such as an exceeded size cap) resurface there.
func peekUserID(c *gin.Context) (int64, bool) {
	orig := c.Request.Body
	if orig == nil {
		return 0, false
	}
	raw, err := io.ReadAll(orig)
	c.Request.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), orig), orig}
	if err != nil {
		return 0, false
	}
	var body struct {
		UserID int64 `json:"userId"`
	}
	if json.Unmarshal(raw, &body) != nil || body.UserID <= 0 {
		return 0, false
	}
	return body.UserID, true
}

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether the acting user has a live record for the key.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IsRateBypass reports whether the rate limiter should let this request
// through without spending a token.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}
