package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
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

func TestRecordSearch(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSearch(ctx, "google", "ok", 0.2)
	m.RecordSearch(ctx, "duckduckgo", "error", 1.5)

	rm := collect(t, reader)

	counter := findMetric(rm, "setsuna.search.queries")
	if counter == nil {
		t.Fatal("setsuna.search.queries not found")
	}
	sum, ok := counter.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", counter.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("query counter total = %d, want 2", total)
	}

	hist := findMetric(rm, "setsuna.search.duration")
	if hist == nil {
		t.Fatal("setsuna.search.duration not found")
	}
	hd, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", hist.Data)
	}
	var count uint64
	for _, dp := range hd.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("duration histogram count = %d, want 2", count)
	}
}

func TestRecordSpend_Accumulates(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSpend(ctx, "search", 0.25)
	m.RecordSpend(ctx, "search", 0.25)
	m.RecordSpend(ctx, "llm", 0.5)

	rm := collect(t, reader)
	spend := findMetric(rm, "setsuna.budget.spend")
	if spend == nil {
		t.Fatal("setsuna.budget.spend not found")
	}
	sum, ok := spend.Data.(metricdata.Sum[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", spend.Data)
	}
	var total float64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1.0 {
		t.Errorf("spend total = %v, want 1.0", total)
	}
}

func TestActiveSessions_UpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	active := findMetric(rm, "setsuna.sessions.active")
	if active == nil {
		t.Fatal("setsuna.sessions.active not found")
	}
	sum, ok := active.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", active.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %+v, want single datapoint of 1", sum.DataPoints)
	}
}
