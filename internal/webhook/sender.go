package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBody = 1024 // 1KB cap on captured response body

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "article-webhooks/1.0"

// Result describes a single delivery attempt.
type Result struct {
	StatusCode int
	Response   string
	LatencyMs  int
	// Err is set for encode and transport failures and for non-2xx replies.
	Err error
}

// Sender performs the HTTP POST of an envelope.
type Sender struct {
	client    *http.Client
	userAgent string
}

// NewSender creates a sender. A nil client gets one with the given timeout
// that does not follow redirects, so a 3xx reply is a failed delivery rather
// than a body-less GET to the new location.
func NewSender(client *http.Client, timeout time.Duration, userAgent string) *Sender {
	if client == nil {
		client = &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Sender{client: client, userAgent: userAgent}
}

// Send POSTs env as JSON to url and returns the outcome.
func (s *Sender) Send(ctx context.Context, url string, env Envelope) Result {
	body, err := json.Marshal(env)
	if err != nil {
		return Result{Err: fmt.Errorf("marshal envelope: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // URL is the subscriber's registered webhook.
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return Result{Err: err, LatencyMs: latency}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	res := Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  latency,
	}
	switch {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		res.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	case readErr != nil:
		res.Err = fmt.Errorf("read response: %w", readErr)
	}
	return res
}
