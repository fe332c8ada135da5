// Package receiver is a development webhook sink: it accepts deliveries,
// keeps the most recent ones in memory, and exposes them for inspection.
package receiver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-article-webhooks/internal/domain"
)

// DefaultCapacity bounds the in-memory history when none is configured.
const DefaultCapacity = 500

// unknownEvent labels deliveries without a recognised eventType.
const unknownEvent = "unknown"

// eventLabel maps eventType onto the known event tags. Anything else is
// unknown, which keeps metric labels and per-event counters bounded.
func eventLabel(eventType string) string {
	switch eventType {
	case domain.EventArticleCreated, domain.EventArticleUpdated, domain.EventArticleDeleted:
		return eventType
	}
	return unknownEvent
}

// Delivery is one received webhook call.
type Delivery struct {
	ID         string          `json:"id"`
	ReceivedAt time.Time       `json:"receivedAt"`
	EventType  string          `json:"eventType"`
	Body       json.RawMessage `json:"body"`
}

// Store is a fixed-size ring of deliveries; the oldest entry is evicted
// when full. Per-event counters survive eviction and reset only on Clear.
// Deliveries keep the raw eventType; counters use eventLabel.
type Store struct {
	mu     sync.RWMutex
	buf    []Delivery
	next   int
	size   int
	counts map[string]int64
	total  int64
}

// NewStore returns a Store holding at most capacity deliveries.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		buf:    make([]Delivery, capacity),
		counts: make(map[string]int64),
	}
}

// Add records body and returns the stored delivery.
func (s *Store) Add(eventType string, body json.RawMessage, at time.Time) Delivery {
	if eventType == "" {
		eventType = unknownEvent
	}
	d := Delivery{
		ID:         uuid.NewString(),
		ReceivedAt: at.UTC(),
		EventType:  eventType,
		Body:       append(json.RawMessage(nil), body...),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = d
	s.next = (s.next + 1) % len(s.buf)
	if s.size < len(s.buf) {
		s.size++
	}
	s.counts[eventLabel(eventType)]++
	s.total++
	return d
}

// List returns up to limit deliveries, newest first. limit <= 0 means all.
func (s *Store) List(limit int) []Delivery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Delivery, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.next - i + len(s.buf)) % len(s.buf)
		out = append(out, s.buf[idx])
	}
	return out
}

// Get looks a retained delivery up by id.
func (s *Store) Get(id string) (Delivery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 0; i < s.size; i++ {
		if s.buf[i].ID == id {
			return s.buf[i], true
		}
	}
	return Delivery{}, false
}

// Clear drops history and counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = make([]Delivery, len(s.buf))
	s.next, s.size, s.total = 0, 0, 0
	s.counts = make(map[string]int64)
}

// Stats summarizes what has been received since the last Clear.
type Stats struct {
	Total    int64            `json:"total"`
	Retained int              `json:"retained"`
	Capacity int              `json:"capacity"`
	ByEvent  map[string]int64 `json:"byEvent"`
}

// Stats returns a snapshot of the counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	by := make(map[string]int64, len(s.counts))
	for k, v := range s.counts {
		by[k] = v
	}
	return Stats{Total: s.total, Retained: s.size, Capacity: len(s.buf), ByEvent: by}
}
