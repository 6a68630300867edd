package chat

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/setsuna-project/setsuna/internal/observe"
	"github.com/setsuna-project/setsuna/pkg/provider/llm"
	llmmock "github.com/setsuna-project/setsuna/pkg/provider/llm/mock"
)

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return met, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRespond_RecordsCompletionLatency(t *testing.T) {
	met, reader := newTestMetrics(t)
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "はい"},
	}
	e, err := New(Config{Metrics: met}, provider, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := e.Respond(context.Background(), "user1", "こんにちは"); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	md := findMetric(t, reader, "setsuna.llm.duration")
	if md == nil {
		t.Fatal("setsuna.llm.duration was not recorded")
	}
	hist, ok := md.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 1 {
		t.Errorf("completion latency samples = %d, want 1", count)
	}
}

func TestRespond_RecordsProviderError(t *testing.T) {
	met, reader := newTestMetrics(t)
	provider := &llmmock.Provider{CompleteErr: errors.New("upstream down")}
	e, err := New(Config{Metrics: met}, provider, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := e.Respond(context.Background(), "user1", "こんにちは"); err == nil {
		t.Fatal("Respond: expected provider error")
	}

	md := findMetric(t, reader, "setsuna.provider.errors")
	if md == nil {
		t.Fatal("setsuna.provider.errors was not recorded")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("provider errors recorded = %d, want 1", total)
	}
}
