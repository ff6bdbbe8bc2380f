package observe

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is reported as service.name when none is configured.
const DefaultServiceName = "prosodia"

// TelemetryConfig selects how the server reports itself.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string

	// TraceSampleRatio is the share of new traces recorded. Values outside
	// (0, 1) record everything. Requests carrying a sampled traceparent are
	// always recorded so distributed traces stay whole.
	TraceSampleRatio float64

	// SpanExporter receives finished spans in batches. Nil keeps spans
	// in-process only, which is enough for correlation IDs and log context.
	SpanExporter sdktrace.SpanExporter

	// Registerer receives the Prometheus collector. Nil means the default
	// registry served by [MetricsHandler].
	Registerer prometheus.Registerer
}

// Telemetry owns the meter and tracer providers installed by [Setup].
type Telemetry struct {
	meters  *sdkmetric.MeterProvider
	tracers *sdktrace.TracerProvider
}

// Setup builds the providers for cfg and installs them, together with the
// W3C trace context propagator, as the process-wide OpenTelemetry globals.
// Instruments created afterwards (see [DefaultMetrics]) bind to them.
func Setup(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	exporterOpts := []promexporter.Option{}
	if cfg.Registerer != nil {
		exporterOpts = append(exporterOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	reader, err := promexporter.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	t := &Telemetry{
		meters: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		),
		tracers: sdktrace.NewTracerProvider(tracerOptions(res, cfg)...),
	}
	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.tracers)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return t, nil
}

// serviceResource describes this process. OTEL_RESOURCE_ATTRIBUTES may add
// attributes; a malformed variable is logged and skipped.
func serviceResource(ctx context.Context, cfg TelemetryConfig) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cmp.Or(cfg.ServiceName, DefaultServiceName)),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	switch {
	case errors.Is(err, resource.ErrPartialResource):
		slog.Warn("observe: incomplete telemetry resource", "err", err)
	case err != nil:
		return nil, fmt.Errorf("observe: resource: %w", err)
	}
	return res, nil
}

func tracerOptions(res *resource.Resource, cfg TelemetryConfig) []sdktrace.TracerProviderOption {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if r := cfg.TraceSampleRatio; r > 0 && r < 1 {
		opts = append(opts, sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(r))))
	}
	if cfg.SpanExporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.SpanExporter))
	}
	return opts
}

// Shutdown flushes pending spans, then stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.tracers.Shutdown(ctx),
		t.meters.Shutdown(ctx),
	)
}

// MetricsHandler serves the default Prometheus registry at /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
