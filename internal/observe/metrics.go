// Package observe provides application-wide observability primitives for
// the Setsuna bot: OpenTelemetry metrics, tracing, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so the standard /metrics
// endpoint keeps working. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Setsuna metrics.
const meterName = "github.com/setsuna-project/setsuna"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// SearchDuration tracks web search latency. Attributes: engine, status.
	SearchDuration metric.Float64Histogram

	// LLMDuration tracks LLM completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// SearchQueries counts search queries by engine and status.
	SearchQueries metric.Int64Counter

	// ItemsStored counts knowledge items written by layer.
	ItemsStored metric.Int64Counter

	// SessionsCreated counts learning sessions by relationship type.
	SessionsCreated metric.Int64Counter

	// BudgetSpend accumulates ledger cost by api_type.
	BudgetSpend metric.Float64Counter

	// ProviderErrors counts provider failures by provider and kind.
	ProviderErrors metric.Int64Counter

	// ActiveSessions tracks the number of learning sessions running now.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time by method
	// and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. Search and
// LLM calls sit in the hundreds-of-milliseconds to tens-of-seconds range.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SearchDuration, err = m.Float64Histogram("setsuna.search.duration",
		metric.WithDescription("Latency of web search queries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("setsuna.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("setsuna.tts.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SearchQueries, err = m.Int64Counter("setsuna.search.queries",
		metric.WithDescription("Total search queries by engine and status."),
	); err != nil {
		return nil, err
	}
	if met.ItemsStored, err = m.Int64Counter("setsuna.knowledge.items_stored",
		metric.WithDescription("Total knowledge items written by layer."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCreated, err = m.Int64Counter("setsuna.sessions.created",
		metric.WithDescription("Total learning sessions by relationship type."),
	); err != nil {
		return nil, err
	}
	if met.BudgetSpend, err = m.Float64Counter("setsuna.budget.spend",
		metric.WithDescription("Accumulated API spend by api_type."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("setsuna.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("setsuna.sessions.active",
		metric.WithDescription("Number of learning sessions currently running."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("setsuna.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// The recorder methods below accept a nil receiver and do nothing, so
// components can hold an optional *Metrics without guarding every call.

// RecordSearch records one search query's latency and outcome.
func (m *Metrics) RecordSearch(ctx context.Context, engine, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("status", status),
	)
	m.SearchQueries.Add(ctx, 1, attrs)
	m.SearchDuration.Record(ctx, seconds, attrs)
}

// RecordLLM records one completion's latency and outcome.
func (m *Metrics) RecordLLM(ctx context.Context, provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.LLMDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordTTS records one synthesis call's latency and outcome.
func (m *Metrics) RecordTTS(ctx context.Context, provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.TTSDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordItemStored increments the item counter for a layer.
func (m *Metrics) RecordItemStored(ctx context.Context, layer string) {
	if m == nil {
		return
	}
	m.ItemsStored.Add(ctx, 1,
		metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordSessionCreated increments the session counter.
func (m *Metrics) RecordSessionCreated(ctx context.Context, relationshipType string) {
	if m == nil {
		return
	}
	m.SessionsCreated.Add(ctx, 1,
		metric.WithAttributes(attribute.String("relationship_type", relationshipType)))
}

// RecordSpend adds cost to the spend counter.
func (m *Metrics) RecordSpend(ctx context.Context, apiType string, cost float64) {
	if m == nil {
		return
	}
	m.BudgetSpend.Add(ctx, cost,
		metric.WithAttributes(attribute.String("api_type", apiType)))
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// SessionStarted bumps the active-session gauge up. SessionEnded undoes it.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded bumps the active-session gauge down.
func (m *Metrics) SessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
