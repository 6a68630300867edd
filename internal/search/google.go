package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const googleBaseURL = "https://www.googleapis.com/customsearch/v1"

// googleEngine queries the Google Custom Search JSON API.
type googleEngine struct {
	apiKey  string
	cx      string
	baseURL string
	client  *http.Client
}

var _ Engine = (*googleEngine)(nil)

// GoogleOption is a functional option for [NewGoogle].
type GoogleOption func(*googleEngine)

// WithGoogleBaseURL overrides the API endpoint. Used in tests.
func WithGoogleBaseURL(u string) GoogleOption {
	return func(g *googleEngine) { g.baseURL = u }
}

// WithGoogleHTTPClient overrides the HTTP client.
func WithGoogleHTTPClient(c *http.Client) GoogleOption {
	return func(g *googleEngine) { g.client = c }
}

// NewGoogle constructs a Google Custom Search engine. apiKey and cx (the
// programmable search engine id) are both required.
func NewGoogle(apiKey, cx string, opts ...GoogleOption) (Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("search: google api key must not be empty")
	}
	if cx == "" {
		return nil, fmt.Errorf("search: google cx must not be empty")
	}
	g := &googleEngine{
		apiKey:  apiKey,
		cx:      cx,
		baseURL: googleBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

func (g *googleEngine) Name() string { return "google" }

// googleResponse mirrors the subset of the Custom Search response we consume.
type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
	SearchInformation struct {
		TotalResults string `json:"totalResults"`
	} `json:"searchInformation"`
}

// Search implements [Engine].
func (g *googleEngine) Search(ctx context.Context, query string, maxResults int) (Result, error) {
	if maxResults <= 0 || maxResults > 10 {
		// The API caps num at 10 per request.
		maxResults = 10
	}

	q := url.Values{}
	q.Set("key", g.apiKey)
	q.Set("cx", g.cx)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(maxResults))

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("search: google: build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("search: google: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("search: google: unexpected status %s", resp.Status)
	}

	var body googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("search: google: decode response: %w", err)
	}

	result := Result{
		Engine: g.Name(),
		Query:  query,
		Took:   time.Since(start),
	}
	if n, err := strconv.ParseInt(body.SearchInformation.TotalResults, 10, 64); err == nil {
		result.TotalResults = n
	}
	for i, it := range body.Items {
		if i >= maxResults {
			break
		}
		result.Items = append(result.Items, Item{
			Title:   it.Title,
			URL:     it.Link,
			Snippet: it.Snippet,
			Rank:    i + 1,
		})
	}
	return result, nil
}
