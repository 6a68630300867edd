package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/setsuna-project/setsuna/internal/budget"
	"github.com/setsuna-project/setsuna/pkg/provider/llm"
	llmmock "github.com/setsuna-project/setsuna/pkg/provider/llm/mock"
)

func TestRespond_UsesPersonaAndHistory(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "こんにちは！せつなです。",
			Usage:   llm.Usage{TotalTokens: 42},
		},
	}
	e, err := New(Config{SystemPrompt: "テスト用ペルソナ"}, provider, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reply, err := e.Respond(context.Background(), "user1", "こんにちは")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "こんにちは！せつなです。" {
		t.Errorf("reply = %q", reply)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt != "テスト用ペルソナ" {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "こんにちは" {
		t.Errorf("messages = %+v", req.Messages)
	}

	// Second turn carries the first exchange.
	if _, err := e.Respond(context.Background(), "user1", "調子はどう？"); err != nil {
		t.Fatalf("Respond second turn: %v", err)
	}
	req = provider.Calls()[1].Req
	if len(req.Messages) != 3 {
		t.Fatalf("second turn messages = %d, want 3", len(req.Messages))
	}
	if req.Messages[1].Role != "assistant" {
		t.Errorf("messages[1].Role = %q, want assistant", req.Messages[1].Role)
	}
}

func TestRespond_IsolatesUsers(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "ok"},
	}
	e, err := New(Config{}, provider, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := e.Respond(context.Background(), "alice", "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Respond(context.Background(), "bob", "hi"); err != nil {
		t.Fatal(err)
	}

	calls := provider.Calls()
	if len(calls[1].Req.Messages) != 1 {
		t.Errorf("bob's first turn saw %d messages, want 1", len(calls[1].Req.Messages))
	}
}

func TestRespond_EmptyText(t *testing.T) {
	e, err := New(Config{}, &llmmock.Provider{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Respond(context.Background(), "user1", "  "); err == nil {
		t.Fatal("Respond with blank text returned nil error")
	}
}

func TestRespond_SummarisesWhenWindowFills(t *testing.T) {
	long := strings.Repeat("あ", 400)
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "要約: これまでの話。"},
	}
	e, err := New(Config{MaxContextTokens: 200}, provider, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A single long exchange pushes the estimate over 0.75 x 200 tokens.
	if _, err := e.Respond(context.Background(), "user1", long); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if _, err := e.Respond(context.Background(), "user1", "続けて"); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	var sawSummary bool
	for _, call := range provider.Calls() {
		for _, m := range call.Req.Messages {
			if m.Role == "system" && strings.Contains(m.Content, "これまでの会話の要約") {
				sawSummary = true
			}
		}
	}
	if !sawSummary {
		t.Error("no summary system message appeared after window filled")
	}
}

func TestRespond_BudgetExhaustion(t *testing.T) {
	bm, err := budget.NewManager(filepath.Join(t.TempDir(), "budget.jsonl"), budget.Limits{PerSession: 0.5})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "ok",
			Usage:   llm.Usage{TotalTokens: 1000},
		},
	}
	e, err := New(Config{CostPerThousandTokens: 1.0}, provider, bm)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// First call crosses the limit but is still answered.
	if _, err := e.Respond(context.Background(), "user1", "一回目"); err != nil {
		t.Fatalf("first Respond: %v", err)
	}
	// Second call also gets its reply; the record attempt marks exhaustion.
	if _, err := e.Respond(context.Background(), "user1", "二回目"); err != nil {
		t.Fatalf("second Respond: %v", err)
	}
	// Third call is refused without touching the provider.
	before := len(provider.Calls())
	_, err = e.Respond(context.Background(), "user1", "三回目")
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("third Respond error = %v, want ErrBudgetExhausted", err)
	}
	if len(provider.Calls()) != before {
		t.Error("exhausted user still reached the provider")
	}

	// Other users keep their own scope.
	if _, err := e.Respond(context.Background(), "user2", "こんにちは"); err != nil {
		t.Fatalf("other user Respond: %v", err)
	}
}

func TestForget_ClearsWindow(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "ok"},
	}
	e, err := New(Config{}, provider, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Respond(context.Background(), "user1", "覚えてて"); err != nil {
		t.Fatal(err)
	}
	if e.TokenEstimate("user1") == 0 {
		t.Fatal("token estimate zero after a turn")
	}
	e.Forget("user1")
	if got := e.TokenEstimate("user1"); got != 0 {
		t.Errorf("token estimate after Forget = %d, want 0", got)
	}
}
