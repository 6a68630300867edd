// Package search provides web search engines and the multi-engine fan-out
// used by the activity learning engine.
//
// Two concrete engines are included, backed by the Google Custom Search JSON
// API and the DuckDuckGo Instant Answer API. [Multi] composes any number of
// engines behind per-engine circuit breakers and merges their results.
package search

import (
	"context"
	"errors"
	"time"
)

// ErrNoResults is returned when a query produced no usable hits.
var ErrNoResults = errors.New("search: no results")

// Item is a single search hit.
type Item struct {
	// Title is the page title as reported by the engine.
	Title string `json:"title"`

	// URL is the canonical link of the hit.
	URL string `json:"url"`

	// Snippet is the engine's short excerpt for the hit.
	Snippet string `json:"snippet"`

	// Rank is the 1-based position of the hit within its engine's response.
	Rank int `json:"rank"`
}

// Result is the outcome of one query against one engine (or a merged
// multi-engine batch, in which case Engine is "multi").
type Result struct {
	// Engine names the engine that produced the result.
	Engine string `json:"engine"`

	// Query is the query string as sent.
	Query string `json:"query"`

	// Items are the hits, best first.
	Items []Item `json:"items"`

	// TotalResults is the engine's reported total match count, when known.
	TotalResults int64 `json:"total_results"`

	// Took is the wall-clock duration of the request.
	Took time.Duration `json:"took"`
}

// Engine is a single web search backend.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// Search runs one query and returns at most maxResults hits.
	Search(ctx context.Context, query string, maxResults int) (Result, error)

	// Name identifies the engine in results, stats and log output.
	Name() string
}
