package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-article-webhooks/internal/domain"
	"github.com/tbourn/go-article-webhooks/internal/sysutil"
)

const tracerName = "github.com/tbourn/go-article-webhooks/internal/webhook"

// Defaults applied by New when Options leave a field zero.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxInFlight = 64
)

// ErrClosed is reported (in logs and metrics) for dispatches after Close.
var ErrClosed = errors.New("dispatcher closed")

// Lookup resolves the webhook subscription of a user. found is false when the
// user has none.
type Lookup func(ctx context.Context, userID int64) (sub domain.WebhookSubscription, found bool, err error)

// Options configures a Dispatcher.
type Options struct {
	// Timeout bounds a single delivery, including connect and response.
	Timeout time.Duration
	// MaxInFlight caps concurrent deliveries; excess dispatches are dropped.
	MaxInFlight int
	// UserAgent is sent on every POST.
	UserAgent string
	// Client overrides the HTTP client (tests).
	Client *http.Client
	// Logger overrides the global zerolog logger.
	Logger *zerolog.Logger
	// Now overrides the envelope clock (tests).
	Now func() time.Time
}

// Dispatcher performs fire-and-forget webhook deliveries.
type Dispatcher struct {
	lookup  Lookup
	sender  *Sender
	timeout time.Duration
	sem     chan struct{}
	log     zerolog.Logger
	now     func() time.Time
	tracer  trace.Tracer

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Dispatcher that resolves subscribers with lookup.
func New(lookup Lookup, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	lg := log.Logger
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		lookup:  lookup,
		sender:  NewSender(opts.Client, opts.Timeout, opts.UserAgent),
		timeout: opts.Timeout,
		sem:     make(chan struct{}, opts.MaxInFlight),
		log:     lg.With().Str("component", "webhook").Logger(),
		now:     now,
		tracer:  otel.Tracer(tracerName),
	}
}

// Dispatch notifies the subscriber of userID about eventType on a. It
// returns as soon as the delivery has been handed to a goroutine (or
// skipped); the outcome is only visible in logs, metrics and traces.
//
// The subscription lookup runs on the caller's goroutine so the URL is the
// one registered at the time of the mutation. Request cancellation does not
// abort an accepted delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, userID int64, eventType string, a domain.Article) {
	lg := d.log.With().Int64("user_id", userID).Str("event_type", eventType).Logger()

	sub, found, err := d.safeLookup(ctx, userID)
	if err != nil {
		lg.Error().Err(err).Msg("webhook lookup failed")
		countOutcome(eventType, OutcomeLookupFailed)
		return
	}
	if !found {
		lg.Debug().Msg("no webhook subscription")
		countOutcome(eventType, OutcomeSkipped)
		return
	}
	lg = lg.With().Str("url", sysutil.RedactURL(sub.WebhookURL)).Logger()

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		lg.Warn().Err(ErrClosed).Msg("webhook dropped")
		countOutcome(eventType, OutcomeDropped)
		return
	}
	select {
	case d.sem <- struct{}{}:
	default:
		d.mu.RUnlock()
		lg.Warn().Int("max_in_flight", cap(d.sem)).Msg("webhook dropped: too many in flight")
		countOutcome(eventType, OutcomeDropped)
		return
	}
	d.wg.Add(1)
	d.mu.RUnlock()

	go d.deliver(context.WithoutCancel(ctx), lg, sub.WebhookURL, userID, eventType, a)
}

// Close stops accepting dispatches and waits for in-flight deliveries or
// for ctx to expire, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) safeLookup(ctx context.Context, userID int64) (sub domain.WebhookSubscription, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lookup panic: %v", r)
		}
	}()
	return d.lookup(ctx, userID)
}

func (d *Dispatcher) deliver(ctx context.Context, lg zerolog.Logger, url string, userID int64, eventType string, a domain.Article) {
	defer d.wg.Done()
	defer func() { <-d.sem }()

	dispatchInflight.Inc()
	defer dispatchInflight.Dec()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ctx, span := d.tracer.Start(ctx, "webhook.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int64("webhook.user_id", userID),
			attribute.String("webhook.event_type", eventType),
			attribute.Int64("article.id", int64(a.ID)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			lg.Error().Interface("panic", r).Msg("webhook delivery panicked")
			span.SetStatus(codes.Error, "panic")
			countOutcome(eventType, OutcomeFailed)
		}
	}()

	res := d.sender.Send(ctx, url, NewEnvelope(eventType, a, d.now()))
	dispatchLat.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode),
		attribute.Int("webhook.latency_ms", res.LatencyMs),
	)

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		lg.Error().
			Err(res.Err).
			Int("status", res.StatusCode).
			Int("latency_ms", res.LatencyMs).
			Str("response", res.Response).
			Msg("webhook delivery failed")
		countOutcome(eventType, OutcomeFailed)
		return
	}
	lg.Info().
		Int("status", res.StatusCode).
		Int("latency_ms", res.LatencyMs).
		Msg("webhook delivered")
	countOutcome(eventType, OutcomeDelivered)
}
