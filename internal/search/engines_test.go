package search_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/setsuna-project/setsuna/internal/search"
)

// mockGoogleServer serves a canned Custom Search response and verifies the
// query parameters.
func mockGoogleServer(t *testing.T, wantQuery string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("q"); got != wantQuery {
			t.Errorf("q parameter: got %q, want %q", got, wantQuery)
		}
		if q.Get("key") == "" || q.Get("cx") == "" {
			t.Error("missing key or cx parameter")
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]string{
				{"title": "Suno AI", "link": "https://example.com/suno", "snippet": "AI music generation"},
				{"title": "Udio", "link": "https://example.com/udio", "snippet": "text to music"},
			},
			"searchInformation": map[string]string{"totalResults": "2040"},
		}); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestGoogle_Search(t *testing.T) {
	srv := mockGoogleServer(t, "AI音楽生成")
	defer srv.Close()

	eng, err := search.NewGoogle("test-key", "test-cx", search.WithGoogleBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}

	res, err := eng.Search(context.Background(), "AI音楽生成", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Engine != "google" {
		t.Errorf("Engine = %q, want google", res.Engine)
	}
	if len(res.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(res.Items))
	}
	if res.Items[0].URL != "https://example.com/suno" || res.Items[0].Rank != 1 {
		t.Errorf("first item = %+v", res.Items[0])
	}
	if res.TotalResults != 2040 {
		t.Errorf("TotalResults = %d, want 2040", res.TotalResults)
	}
}

func TestGoogle_RequiresCredentials(t *testing.T) {
	if _, err := search.NewGoogle("", "cx"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := search.NewGoogle("key", ""); err == nil {
		t.Error("expected error for empty cx")
	}
}

func TestGoogle_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	eng, err := search.NewGoogle("k", "c", search.WithGoogleBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}
	if _, err := eng.Search(context.Background(), "x", 3); err == nil {
		t.Fatal("expected error on HTTP 403")
	}
}

func TestDuckDuckGo_FlattensTopics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format parameter: got %q, want json", got)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"Heading":      "Music and artificial intelligence",
			"AbstractText": "AI applied to music composition.",
			"AbstractURL":  "https://example.com/abstract",
			"RelatedTopics": []map[string]any{
				{"Text": "Generative music", "FirstURL": "https://example.com/gen"},
				{
					"Name": "See also",
					"Topics": []map[string]any{
						{"Text": "Algorithmic composition", "FirstURL": "https://example.com/algo"},
					},
				},
			},
		}); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	defer srv.Close()

	eng := search.NewDuckDuckGo(search.WithDuckDuckGoBaseURL(srv.URL))
	res, err := eng.Search(context.Background(), "music ai", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := []string{
		"https://example.com/abstract",
		"https://example.com/gen",
		"https://example.com/algo",
	}
	if len(res.Items) != len(want) {
		t.Fatalf("got %d items, want %d: %+v", len(res.Items), len(want), res.Items)
	}
	for i, u := range want {
		if res.Items[i].URL != u {
			t.Errorf("item %d URL = %q, want %q", i, res.Items[i].URL, u)
		}
		if res.Items[i].Rank != i+1 {
			t.Errorf("item %d Rank = %d, want %d", i, res.Items[i].Rank, i+1)
		}
	}
}

func TestDuckDuckGo_MaxResults(t *testing.T) {
	topics := make([]map[string]any, 8)
	for i := range topics {
		topics[i] = map[string]any{
			"Text":     "topic",
			"FirstURL": "https://example.com/" + string(rune('a'+i)),
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"RelatedTopics": topics})
	}))
	defer srv.Close()

	eng := search.NewDuckDuckGo(search.WithDuckDuckGoBaseURL(srv.URL))
	res, err := eng.Search(context.Background(), "x", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Items) != 3 {
		t.Errorf("got %d items, want 3", len(res.Items))
	}
}
