// Package observe provides the observability primitives of the prosodia
// server: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported for
// Prometheus scraping by [Setup]. [Metrics] implements the engine's
// Recorder interface. Tests should build their own instance with
// [NewMetrics] and a manual reader to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/prosodia/pkg/engine"
	"github.com/MrWong99/prosodia/pkg/types"
)

// meterName is the instrumentation scope of all prosodia metrics.
const meterName = "github.com/MrWong99/prosodia"

// Metrics holds the metric instruments of the server.
type Metrics struct {
	// AnalysisDuration tracks end-to-end Analyze latency by level and
	// reference tier.
	AnalysisDuration metric.Float64Histogram

	// StageDuration tracks pipeline stage latency by stage.
	StageDuration metric.Float64Histogram

	// Confidence records the confidence of every score.
	Confidence metric.Float64Histogram

	// Analyses counts completed analyses by level and reference tier.
	Analyses metric.Int64Counter

	// Degraded counts locally recovered failures by reason.
	Degraded metric.Int64Counter

	// InFlight tracks analyses in progress.
	InFlight metric.Int64UpDownCounter

	// SynthesisDuration tracks TTS latency by provider.
	SynthesisDuration metric.Float64Histogram

	// ProviderRequests counts TTS calls by provider and status.
	ProviderRequests metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by provider
	// and target state.
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration tracks HTTP latency by method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

var _ engine.Recorder = (*Metrics)(nil)

// latencyBuckets are bucket boundaries in seconds.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

var confidenceBuckets = []float64{0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AnalysisDuration, err = m.Float64Histogram("prosodia.analysis.duration",
		metric.WithDescription("Latency of one pronunciation analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("prosodia.stage.duration",
		metric.WithDescription("Latency of one analysis pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Confidence, err = m.Float64Histogram("prosodia.analysis.confidence",
		metric.WithDescription("Confidence of produced scores."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Analyses, err = m.Int64Counter("prosodia.analyses",
		metric.WithDescription("Completed analyses by level and reference tier."),
	); err != nil {
		return nil, err
	}
	if met.Degraded, err = m.Int64Counter("prosodia.degraded",
		metric.WithDescription("Recovered failures by reason."),
	); err != nil {
		return nil, err
	}
	if met.InFlight, err = m.Int64UpDownCounter("prosodia.analyses.in_flight",
		metric.WithDescription("Analyses in progress."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("prosodia.tts.duration",
		metric.WithDescription("Latency of reference-voice synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("prosodia.tts.requests",
		metric.WithDescription("TTS requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("prosodia.tts.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and target state."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("prosodia.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level instance built on the global meter
// provider. It panics if instrument creation fails, which the global
// provider never does.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordAnalysis implements engine.Recorder.
func (m *Metrics) RecordAnalysis(ctx context.Context, level types.Level, tier types.Tier, d time.Duration, confidence float64) {
	attrs := metric.WithAttributes(
		attribute.String("level", level.String()),
		attribute.String("tier", string(tier)),
	)
	m.AnalysisDuration.Record(ctx, d.Seconds(), attrs)
	m.Analyses.Add(ctx, 1, attrs)
	m.Confidence.Record(ctx, confidence, metric.WithAttributes(attribute.String("tier", string(tier))))
}

// RecordStage implements engine.Recorder.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordDegraded implements engine.Recorder.
func (m *Metrics) RecordDegraded(ctx context.Context, reason string) {
	m.Degraded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// AddInFlight implements engine.Recorder.
func (m *Metrics) AddInFlight(ctx context.Context, delta int64) {
	m.InFlight.Add(ctx, delta)
}

// RecordProviderRequest records one TTS call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string, d time.Duration) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
	m.SynthesisDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordBreakerTransition counts a breaker of provider moving to state to.
func (m *Metrics) RecordBreakerTransition(provider, to string) {
	m.BreakerTransitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("state", to),
	))
}
