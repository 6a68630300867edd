package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/setsuna-project/setsuna/internal/observe"
	"github.com/setsuna-project/setsuna/internal/resilience"
)

// EngineStats are per-engine counters kept by [Multi].
type EngineStats struct {
	Queries  int64 `json:"queries"`
	Failures int64 `json:"failures"`
	Items    int64 `json:"items"`
}

// Stats is a snapshot of [Multi] counters.
type Stats struct {
	Queries  int64                  `json:"queries"`
	Failures int64                  `json:"failures"`
	ByEngine map[string]EngineStats `json:"by_engine"`
}

// Multi fans a query out to every registered engine concurrently and merges
// the results. Each engine sits behind its own circuit breaker; an engine
// whose breaker is open is skipped for the batch, and a batch succeeds as
// long as at least one engine returns hits.
//
// Multi is safe for concurrent use.
type Multi struct {
	engines  []Engine
	breakers map[string]*resilience.Breaker
	metrics  *observe.Metrics

	mu    sync.Mutex
	stats Stats
}

// MultiOption configures a [Multi].
type MultiOption func(*Multi)

// WithMetrics records per-engine query latency and outcome on m.
func WithMetrics(m *observe.Metrics) MultiOption {
	return func(mu *Multi) { mu.metrics = m }
}

// NewMulti creates a [Multi] over the given engines. settings configures the
// per-engine breakers.
func NewMulti(engines []Engine, settings resilience.Settings, opts ...MultiOption) (*Multi, error) {
	if len(engines) == 0 {
		return nil, fmt.Errorf("search: at least one engine is required")
	}
	m := &Multi{
		engines:  engines,
		breakers: make(map[string]*resilience.Breaker, len(engines)),
	}
	m.stats.ByEngine = make(map[string]EngineStats, len(engines))
	for _, e := range engines {
		s := settings
		s.Name = "search-" + e.Name()
		m.breakers[e.Name()] = resilience.NewBreaker(s)
		m.stats.ByEngine[e.Name()] = EngineStats{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Search implements [Engine]. Results from all engines are merged best-rank
// first and deduplicated by URL; the first engine to report a URL wins.
func (m *Multi) Search(ctx context.Context, query string, maxResults int) (Result, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	start := time.Now()

	results := make([]Result, len(m.engines))
	errs := make([]error, len(m.engines))

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range m.engines {
		g.Go(func() error {
			breaker := m.breakers[e.Name()]
			engineStart := time.Now()
			err := breaker.Do(func() error {
				r, err := e.Search(gctx, query, maxResults)
				if err != nil {
					return err
				}
				results[i] = r
				return nil
			})
			errs[i] = err
			status := "ok"
			if err != nil {
				status = "error"
			}
			m.metrics.RecordSearch(gctx, e.Name(), status, time.Since(engineStart).Seconds())
			// A single slow or broken engine must not fail the batch.
			return nil
		})
	}
	// The group never returns an error; Wait is the join point.
	_ = g.Wait()

	m.mu.Lock()
	m.stats.Queries++
	merged := Result{Engine: "multi", Query: query}
	seen := make(map[string]bool)
	for i, e := range m.engines {
		st := m.stats.ByEngine[e.Name()]
		st.Queries++
		if errs[i] != nil {
			st.Failures++
			m.stats.Failures++
			m.stats.ByEngine[e.Name()] = st
			slog.Warn("search engine failed",
				"engine", e.Name(), "query", query, "error", errs[i])
			continue
		}
		st.Items += int64(len(results[i].Items))
		m.stats.ByEngine[e.Name()] = st

		merged.TotalResults += results[i].TotalResults
		for _, it := range results[i].Items {
			if seen[it.URL] {
				continue
			}
			seen[it.URL] = true
			it.Rank = len(merged.Items) + 1
			merged.Items = append(merged.Items, it)
			if len(merged.Items) >= maxResults {
				break
			}
		}
	}
	m.mu.Unlock()

	merged.Took = time.Since(start)
	if len(merged.Items) == 0 {
		return merged, ErrNoResults
	}
	return merged, nil
}

// Name implements [Engine].
func (m *Multi) Name() string { return "multi" }

// Stats returns a snapshot of the counters.
func (m *Multi) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Stats{
		Queries:  m.stats.Queries,
		Failures: m.stats.Failures,
		ByEngine: make(map[string]EngineStats, len(m.stats.ByEngine)),
	}
	for k, v := range m.stats.ByEngine {
		out.ByEngine[k] = v
	}
	return out
}

var _ Engine = (*Multi)(nil)
