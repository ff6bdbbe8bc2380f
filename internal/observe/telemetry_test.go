package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// setupTelemetry runs Setup against a private registry and span exporter and
// restores the previous globals afterwards.
func setupTelemetry(t *testing.T, cfg TelemetryConfig) (*Telemetry, *tracetest.InMemoryExporter) {
	t.Helper()
	prevTP, prevMP, prevProp := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		otel.SetTextMapPropagator(prevProp)
	})

	exp := tracetest.NewInMemoryExporter()
	cfg.SpanExporter = exp
	cfg.Registerer = prometheus.NewRegistry()
	tel, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return tel, exp
}

func TestSetup_DescribesService(t *testing.T) {
	tel, exp := setupTelemetry(t, TelemetryConfig{ServiceVersion: "1.2.3"})

	_, span := StartSpan(context.Background(), "analyze")
	span.End()
	if err := tel.tracers.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	attrs := spans[0].Resource.Set()
	if v, _ := attrs.Value(semconv.ServiceNameKey); v.AsString() != DefaultServiceName {
		t.Errorf("service.name = %q, want %q", v.AsString(), DefaultServiceName)
	}
	if v, _ := attrs.Value(semconv.ServiceVersionKey); v.AsString() != "1.2.3" {
		t.Errorf("service.version = %q", v.AsString())
	}
	if _, ok := otel.GetTextMapPropagator().(propagation.TraceContext); !ok {
		t.Errorf("global propagator = %T, want TraceContext", otel.GetTextMapPropagator())
	}
}

func TestSetup_SampleRatio(t *testing.T) {
	tel, exp := setupTelemetry(t, TelemetryConfig{ServiceName: "sampling", TraceSampleRatio: 1e-12})

	for range 20 {
		_, span := StartSpan(context.Background(), "unsampled")
		span.End()
	}

	// A sampled caller overrides the ratio.
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	_, span := StartSpan(trace.ContextWithRemoteSpanContext(context.Background(), parent), "continued")
	span.End()

	if err := tel.tracers.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "continued" {
		names := make([]string, len(spans))
		for i, s := range spans {
			names[i] = s.Name
		}
		t.Errorf("exported %v, want only the continued trace", names)
	}
}

func TestMetricsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("exposition lacks the runtime collectors of the default registry")
	}
}
