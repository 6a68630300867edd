package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const duckduckgoBaseURL = "https://api.duckduckgo.com/"

// duckduckgoEngine queries the DuckDuckGo Instant Answer API. The API returns
// an abstract plus a tree of related topics rather than a flat hit list, so
// the response is flattened into [Item] values.
type duckduckgoEngine struct {
	baseURL string
	client  *http.Client
}

var _ Engine = (*duckduckgoEngine)(nil)

// DuckDuckGoOption is a functional option for [NewDuckDuckGo].
type DuckDuckGoOption func(*duckduckgoEngine)

// WithDuckDuckGoBaseURL overrides the API endpoint. Used in tests.
func WithDuckDuckGoBaseURL(u string) DuckDuckGoOption {
	return func(d *duckduckgoEngine) { d.baseURL = u }
}

// WithDuckDuckGoHTTPClient overrides the HTTP client.
func WithDuckDuckGoHTTPClient(c *http.Client) DuckDuckGoOption {
	return func(d *duckduckgoEngine) { d.client = c }
}

// NewDuckDuckGo constructs a DuckDuckGo Instant Answer engine. No credentials
// are required.
func NewDuckDuckGo(opts ...DuckDuckGoOption) Engine {
	d := &duckduckgoEngine{
		baseURL: duckduckgoBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *duckduckgoEngine) Name() string { return "duckduckgo" }

// ddgTopic is one node of the RelatedTopics tree. Leaf nodes carry
// Text/FirstURL; group nodes carry a Name and nested Topics.
type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

// ddgResponse mirrors the subset of the Instant Answer response we consume.
type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

// Search implements [Engine].
func (d *duckduckgoEngine) Search(ctx context.Context, query string, maxResults int) (Result, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("search: duckduckgo: build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("search: duckduckgo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("search: duckduckgo: unexpected status %s", resp.Status)
	}

	var body ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("search: duckduckgo: decode response: %w", err)
	}

	result := Result{
		Engine: d.Name(),
		Query:  query,
		Took:   time.Since(start),
	}

	// The abstract, when present, is the best answer and ranks first.
	if body.AbstractText != "" && body.AbstractURL != "" {
		result.Items = append(result.Items, Item{
			Title:   body.Heading,
			URL:     body.AbstractURL,
			Snippet: body.AbstractText,
			Rank:    1,
		})
	}
	flattenTopics(body.RelatedTopics, &result.Items, maxResults)
	result.TotalResults = int64(len(result.Items))
	return result, nil
}

// flattenTopics walks the RelatedTopics tree depth-first, appending leaf
// entries to items until the limit is reached.
func flattenTopics(topics []ddgTopic, items *[]Item, limit int) {
	for _, t := range topics {
		if len(*items) >= limit {
			return
		}
		if len(t.Topics) > 0 {
			flattenTopics(t.Topics, items, limit)
			continue
		}
		if t.FirstURL == "" || t.Text == "" {
			continue
		}
		*items = append(*items, Item{
			Title:   t.Text,
			URL:     t.FirstURL,
			Snippet: t.Text,
			Rank:    len(*items) + 1,
		})
	}
}
