// Package chat implements the Setsuna conversation core: a persona system
// prompt, per-user conversation windows with automatic summarisation, and
// budget accounting for every completion.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/setsuna-project/setsuna/internal/budget"
	"github.com/setsuna-project/setsuna/internal/observe"
	"github.com/setsuna-project/setsuna/pkg/provider/llm"
)

// ErrBudgetExhausted is returned by [Engine.Respond] once the chat budget
// scope has been spent. Callers should surface a friendly refusal instead of
// retrying.
var ErrBudgetExhausted = errors.New("chat: budget exhausted")

// defaultSystemPrompt is the fallback persona when the configuration does not
// supply one.
const defaultSystemPrompt = `あなたは「せつな」というAIアシスタントです。
親しみやすく、簡潔に日本語で答えてください。知らないことは正直に知らないと言ってください。`

// Config configures a chat [Engine].
type Config struct {
	// PersonaName is the assistant's display name. Defaults to "せつな".
	PersonaName string

	// SystemPrompt is the persona character sheet. A default prompt is used
	// when empty.
	SystemPrompt string

	// MaxContextTokens bounds each user's conversation window. Defaults to
	// 4096.
	MaxContextTokens int

	// CostPerThousandTokens converts token usage into budget spend. Zero
	// disables cost accounting.
	CostPerThousandTokens float64

	// Metrics receives completion latency and error counters. Optional.
	Metrics *observe.Metrics
}

func (c Config) withDefaults() Config {
	if c.PersonaName == "" {
		c.PersonaName = "せつな"
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = 4096
	}
	return c
}

// Engine answers user messages in the Setsuna persona. Each user gets an
// independent conversation window; older turns are summarised away as the
// window fills. Safe for concurrent use.
type Engine struct {
	cfg        Config
	provider   llm.Provider
	budget     *budget.Manager
	summariser Summariser

	mu        sync.Mutex
	windows   map[string]*window
	exhausted map[string]bool
}

// New creates a chat Engine. provider must not be nil; bm may be nil to
// disable budget accounting.
func New(cfg Config, provider llm.Provider, bm *budget.Manager) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("chat: provider must not be nil")
	}
	return &Engine{
		cfg:        cfg.withDefaults(),
		provider:   provider,
		budget:     bm,
		summariser: NewLLMSummariser(provider),
		windows:    make(map[string]*window),
		exhausted:  make(map[string]bool),
	}, nil
}

// Respond produces the persona's reply to one user message. The exchange is
// appended to the user's conversation window and its token cost is recorded
// against the "chat_<userID>" budget scope.
func (e *Engine) Respond(ctx context.Context, userID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("chat: text must not be empty")
	}

	e.mu.Lock()
	spent := e.exhausted[userID]
	e.mu.Unlock()
	if spent {
		return "", fmt.Errorf("chat: user %s: %w", userID, ErrBudgetExhausted)
	}

	w := e.windowFor(userID)
	if err := w.add(ctx, llm.Message{Role: "user", Content: text}); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: e.cfg.SystemPrompt,
		Messages:     w.snapshot(),
		Temperature:  0.8,
	})
	if err != nil {
		e.cfg.Metrics.RecordLLM(ctx, e.provider.Name(), "error", time.Since(start).Seconds())
		e.cfg.Metrics.RecordProviderError(ctx, e.provider.Name(), "completion")
		return "", fmt.Errorf("chat: complete: %w", err)
	}
	e.cfg.Metrics.RecordLLM(ctx, e.provider.Name(), "ok", time.Since(start).Seconds())

	if err := w.add(ctx, llm.Message{Role: "assistant", Content: resp.Content}); err != nil {
		return "", err
	}

	if err := e.recordCost(userID, resp.Usage); err != nil {
		if errors.Is(err, budget.ErrExceeded) {
			// The reply already happened; refuse from the next call on.
			e.mu.Lock()
			e.exhausted[userID] = true
			e.mu.Unlock()
			slog.Warn("chat budget exceeded", "user_id", userID)
			return resp.Content, nil
		}
		return "", err
	}
	return resp.Content, nil
}

// Forget discards a user's conversation history.
func (e *Engine) Forget(userID string) {
	e.mu.Lock()
	w, ok := e.windows[userID]
	e.mu.Unlock()
	if ok {
		w.reset()
	}
}

// TokenEstimate reports the current window size for one user.
func (e *Engine) TokenEstimate(userID string) int {
	e.mu.Lock()
	w, ok := e.windows[userID]
	e.mu.Unlock()
	if !ok {
		return 0
	}
	return w.tokenEstimate()
}

func (e *Engine) windowFor(userID string) *window {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.windows[userID]
	if !ok {
		w = newWindow(e.cfg.MaxContextTokens, e.summariser)
		e.windows[userID] = w
	}
	return w
}

func (e *Engine) recordCost(userID string, usage llm.Usage) error {
	if e.budget == nil || e.cfg.CostPerThousandTokens <= 0 {
		return nil
	}
	cost := float64(usage.TotalTokens) / 1000 * e.cfg.CostPerThousandTokens
	_, err := e.budget.RecordCost("chat_"+userID, "llm", "respond", usage.TotalTokens, cost)
	return err
}
