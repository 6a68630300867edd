package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/setsuna-project/setsuna/pkg/provider/llm"
)

// Learning types understood by the query generator. Sessions created through
// the Discord or CLI surfaces use the Japanese labels directly.
const (
	LearnOverview  = "概要"
	LearnDeepDive  = "深掘り"
	LearnPractical = "実用"
)

// queryTemplates maps a learning type to query suffixes appended to the
// session theme. Unknown learning types fall back to the overview set.
var queryTemplates = map[string][]string{
	LearnOverview:  {"とは", "入門", "基本 解説", "最新動向"},
	LearnDeepDive:  {"仕組み 詳細", "アーキテクチャ", "技術 比較", "研究 論文"},
	LearnPractical: {"使い方", "事例", "チュートリアル", "ベストプラクティス"},
}

// QueryGenerator produces search queries for a session theme. Template
// expansion always works; when an LLM provider is configured it is asked for
// additional queries, and any provider failure silently degrades to the
// template set alone.
type QueryGenerator struct {
	provider llm.Provider // may be nil
}

// NewQueryGenerator creates a generator. provider may be nil, in which case
// only template expansion is used.
func NewQueryGenerator(provider llm.Provider) *QueryGenerator {
	return &QueryGenerator{provider: provider}
}

// Generate returns up to limit queries for the given theme and learning type.
// Template-derived queries come first so a provider outage never changes the
// head of the list.
func (q *QueryGenerator) Generate(ctx context.Context, theme, learningType string, limit int) []string {
	if limit <= 0 {
		limit = 5
	}

	templates, ok := queryTemplates[learningType]
	if !ok {
		templates = queryTemplates[LearnOverview]
	}

	queries := make([]string, 0, limit)
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] || len(queries) >= limit {
			return
		}
		seen[s] = true
		queries = append(queries, s)
	}

	add(theme)
	for _, t := range templates {
		add(theme + " " + t)
	}

	if q.provider != nil && len(queries) < limit {
		extra, err := q.fromLLM(ctx, theme, learningType, limit-len(queries))
		if err != nil {
			slog.Warn("llm query generation failed, using templates only",
				"theme", theme, "error", err)
		}
		for _, s := range extra {
			add(s)
		}
	}
	return queries
}

// fromLLM asks the provider for additional queries, one per line. Lines that
// do not look like plain queries (numbering, bullets, prose) are normalised
// or dropped.
func (q *QueryGenerator) fromLLM(ctx context.Context, theme, learningType string, n int) ([]string, error) {
	prompt := fmt.Sprintf(
		"テーマ「%s」について「%s」タイプの学習をします。"+
			"検索クエリを%d個、1行に1つずつ出力してください。説明や番号は不要です。",
		theme, learningType, n)

	resp, err := q.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if err != nil {
		return nil, fmt.Errorf("search: generate queries: %w", err)
	}

	var out []string
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		line = strings.Trim(line, "\"「」")
		if line == "" || len([]rune(line)) > 60 {
			continue
		}
		out = append(out, line)
		if len(out) >= n {
			break
		}
	}
	return out, nil
}
