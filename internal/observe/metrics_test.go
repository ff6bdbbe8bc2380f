package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/prosodia/pkg/types"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

// hasAttr reports whether set carries key=value.
func hasAttr(set attribute.Set, key, value string) bool {
	v, ok := set.Value(attribute.Key(key))
	return ok && v.AsString() == value
}

func TestRecordAnalysis(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAnalysis(ctx, types.LevelB1, types.TierCurated, 40*time.Millisecond, 0.8)
	m.RecordAnalysis(ctx, types.LevelB1, types.TierCurated, 60*time.Millisecond, 0.9)
	m.RecordAnalysis(ctx, types.LevelC2, types.TierHeuristic, 10*time.Millisecond, 0.5)

	rm := collect(t, reader)

	met := findMetric(rm, "prosodia.analyses")
	if met == nil {
		t.Fatal("prosodia.analyses not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("prosodia.analyses is not a sum")
	}
	found := false
	for _, dp := range sum.DataPoints {
		if hasAttr(dp.Attributes, "level", types.LevelB1.String()) && hasAttr(dp.Attributes, "tier", string(types.TierCurated)) {
			found = true
			if dp.Value != 2 {
				t.Errorf("B1/curated count = %d, want 2", dp.Value)
			}
		}
	}
	if !found {
		t.Error("B1/curated data point missing")
	}

	for _, name := range []string{"prosodia.analysis.duration", "prosodia.analysis.confidence"} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("%s not found", name)
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("%s is not a histogram", name)
		}
		var total uint64
		for _, dp := range hist.DataPoints {
			total += dp.Count
		}
		if total != 3 {
			t.Errorf("%s samples = %d, want 3", name, total)
		}
	}
}

func TestRecordStageAndDegraded(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	for _, stage := range []string{"decode", "extract", "extract", "score"} {
		m.RecordStage(ctx, stage, time.Millisecond)
	}
	m.RecordDegraded(ctx, "reference")
	m.RecordDegraded(ctx, "reference")
	m.RecordDegraded(ctx, "decode")

	rm := collect(t, reader)

	hist, ok := findMetric(rm, "prosodia.stage.duration").Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("prosodia.stage.duration is not a histogram")
	}
	for _, dp := range hist.DataPoints {
		if hasAttr(dp.Attributes, "stage", "extract") && dp.Count != 2 {
			t.Errorf("extract samples = %d, want 2", dp.Count)
		}
	}
	if len(hist.DataPoints) != 3 {
		t.Errorf("stage series = %d, want 3", len(hist.DataPoints))
	}

	sum, ok := findMetric(rm, "prosodia.degraded").Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("prosodia.degraded is not a sum")
	}
	for _, dp := range sum.DataPoints {
		if hasAttr(dp.Attributes, "reason", "reference") && dp.Value != 2 {
			t.Errorf("reference degraded = %d, want 2", dp.Value)
		}
	}
}

func TestAddInFlight(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.AddInFlight(ctx, 1)
	m.AddInFlight(ctx, 1)
	m.AddInFlight(ctx, -1)

	sum, ok := findMetric(collect(t, reader), "prosodia.analyses.in_flight").Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("in_flight is not a sum")
	}
	if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 1 {
		t.Errorf("in_flight = %+v, want 1", sum.DataPoints)
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", StatusOK, 200*time.Millisecond)
	m.RecordProviderRequest(ctx, "openai", StatusOK, 300*time.Millisecond)
	m.RecordProviderRequest(ctx, "openai", StatusError, time.Second)

	rm := collect(t, reader)
	sum, ok := findMetric(rm, "prosodia.tts.requests").Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("prosodia.tts.requests is not a sum")
	}
	found := false
	for _, dp := range sum.DataPoints {
		if hasAttr(dp.Attributes, "status", StatusOK) {
			found = true
			if dp.Value != 2 {
				t.Errorf("ok count = %d, want 2", dp.Value)
			}
		}
	}
	if !found {
		t.Error("data point with status=ok not found")
	}

	hist, ok := findMetric(rm, "prosodia.tts.duration").Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("prosodia.tts.duration is not a histogram")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 3 {
		t.Errorf("tts.duration points = %+v, want one series with 3 samples", hist.DataPoints)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordBreakerTransition("coqui", "open")
	m.RecordBreakerTransition("coqui", "half-open")
	m.RecordBreakerTransition("coqui", "open")

	sum, ok := findMetric(collect(t, reader), "prosodia.tts.breaker.transitions").Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("breaker transitions is not a sum")
	}
	for _, dp := range sum.DataPoints {
		if !hasAttr(dp.Attributes, "provider", "coqui") {
			t.Errorf("unexpected provider attributes %v", dp.Attributes.ToSlice())
		}
		if hasAttr(dp.Attributes, "state", "open") && dp.Value != 2 {
			t.Errorf("open transitions = %d, want 2", dp.Value)
		}
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
