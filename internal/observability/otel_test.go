package observability

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tbourn/go-article-webhooks/internal/config"
)

// withGlobals restores the OTel globals SetupOTel may replace.
func withGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func enabled(name string, insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1,
	}
}

func TestSetupOTel_DisabledLeavesGlobals(t *testing.T) {
	withGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Endpoint: "collector:4317"}, "dev")
	if err != nil || shutdown == nil {
		t.Fatalf("disabled setup: shutdown=%v err=%v", shutdown != nil, err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("disabled setup replaced the tracer provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}

func TestSetupOTel_InstallsProviderAndPropagators(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		t.Run(map[bool]string{true: "plaintext", false: "tls"}[insecure], func(t *testing.T) {
			withGlobals(t)

			shutdown, err := SetupOTel(context.Background(), enabled("articles-test", insecure), "1.0.0")
			if err != nil {
				t.Fatalf("SetupOTel: %v", err)
			}
			t.Cleanup(func() { _ = ShutdownWithin(shutdown, 200*time.Millisecond) })

			if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
				t.Fatalf("provider = %T", otel.GetTracerProvider())
			}
			fields := otel.GetTextMapPropagator().Fields()
			for _, f := range []string{"traceparent", "baggage"} {
				if !slices.Contains(fields, f) {
					t.Fatalf("propagator fields %v missing %s", fields, f)
				}
			}

			_, span := otel.Tracer("test").Start(context.Background(), "webhook.deliver")
			if !span.SpanContext().IsSampled() {
				t.Fatalf("ratio 1 must sample root spans")
			}
			span.End()
		})
	}
}

func TestSetupOTel_CanceledContext(t *testing.T) {
	withGlobals(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	shutdown, err := SetupOTel(ctx, enabled("articles-canceled", true), "1.0.0")
	if err != nil {
		t.Fatalf("grpc client connects lazily, got %v", err)
	}
	if err := ShutdownWithin(shutdown, 250*time.Millisecond); err != nil {
		t.Fatalf("shutdown without spans: %v", err)
	}
}

func TestSetupOTel_FailuresKeepGlobals(t *testing.T) {
	failExporter := func(t *testing.T) {
		orig := newOTLPExporterFn
		t.Cleanup(func() { newOTLPExporterFn = orig })
		newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
			return nil, errors.New("exporter unavailable")
		}
	}
	failResource := func(t *testing.T) {
		orig := newServiceResourceFn
		t.Cleanup(func() { newServiceResourceFn = orig })
		newServiceResourceFn = func(context.Context, string, string) (*resource.Resource, error) {
			return nil, errors.New("resource detection failed")
		}
	}

	cases := []struct {
		name  string
		setup func(*testing.T)
		cfg   config.OTELConfig
		is    error
	}{
		{"blank endpoint", func(*testing.T) {}, config.OTELConfig{Enabled: true, Endpoint: "  "}, ErrNoEndpoint},
		{"exporter", failExporter, enabled("svc", true), nil},
		{"resource", failResource, enabled("svc", true), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withGlobals(t)
			tc.setup(t)
			tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()

			_, err := SetupOTel(context.Background(), tc.cfg, "0")
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("err = %v; want %v", err, tc.is)
			}
			if otel.GetTracerProvider() != tp || otel.GetTextMapPropagator() != prop {
				t.Fatalf("globals changed after failed setup")
			}
		})
	}
}

func Test_samplerFor(t *testing.T) {
	cases := map[float64]string{
		1:    "AlwaysOnSampler",
		2:    "AlwaysOnSampler",
		0:    "AlwaysOffSampler",
		-1:   "AlwaysOffSampler",
		0.25: "TraceIDRatioBased{0.25}",
	}
	for ratio, want := range cases {
		got := samplerFor(ratio).Description()
		if !strings.HasPrefix(got, "ParentBased{root:"+want) {
			t.Fatalf("samplerFor(%v) = %q; want root %q", ratio, got, want)
		}
	}
}

func TestShutdownWithin(t *testing.T) {
	if err := ShutdownWithin(nil, time.Second); err != nil {
		t.Fatalf("nil shutdown: %v", err)
	}
	var sawDeadline bool
	err := ShutdownWithin(func(ctx context.Context) error {
		_, sawDeadline = ctx.Deadline()
		return errors.New("flush failed")
	}, time.Second)
	if err == nil || !sawDeadline {
		t.Fatalf("expected error and deadline, got err=%v deadline=%v", err, sawDeadline)
	}
}
