// Package webhook delivers article events to per-user HTTP endpoints.
//
// A Dispatcher resolves the user's subscription, then POSTs an Envelope to
// the registered URL from a detached goroutine. Delivery is best-effort: one
// attempt, no retry, nothing persisted. Failures are logged, counted and
// dropped; they never reach the code that triggered the event.
package webhook

import (
	"time"

	"github.com/tbourn/go-article-webhooks/internal/domain"
)

// Envelope is the JSON body POSTed to a subscriber.
//
//	{"eventType":"article-created","timestamp":"2025-01-01T12:00:00Z","data":{...}}
type Envelope struct {
	EventType string         `json:"eventType" example:"article-created"`
	Timestamp time.Time      `json:"timestamp"`
	Data      domain.Article `json:"data"`
}

// NewEnvelope stamps an envelope with at in UTC.
func NewEnvelope(eventType string, a domain.Article, at time.Time) Envelope {
	return Envelope{EventType: eventType, Timestamp: at.UTC(), Data: a}
}
