package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/setsuna-project/setsuna/pkg/provider/llm"
)

// charsPerToken is the heuristic ratio used for token estimation.
// Mixed Japanese/English chat averages roughly 4 bytes per token across
// common LLM tokenizers. This avoids pulling in a tokenizer dependency.
const charsPerToken = 4

// summarisationPrompt is the system prompt sent to the LLM when compressing
// older turns of a conversation.
const summarisationPrompt = `以下はユーザーとアシスタント「せつな」の会話の古い部分です。
重要な事実、ユーザーの好みや状況、約束した内容を保ったまま、簡潔に日本語で要約してください。`

// Summariser produces a concise summary of a conversation segment.
type Summariser interface {
	Summarise(ctx context.Context, messages []llm.Message) (string, error)
}

// LLMSummariser uses an LLM provider to summarise conversations.
type LLMSummariser struct {
	llm llm.Provider
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider}
}

// Summarise formats the messages into a transcript and asks the model for a
// condensed summary.
func (s *LLMSummariser) Summarise(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "[%s]: %s\n", m.Role, m.Content)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: sb.String()},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("chat: summarise: %w", err)
	}
	return resp.Content, nil
}

// window tracks one user's conversation history and accumulated token
// estimate. When the estimate exceeds thresholdRatio x maxTokens the oldest
// half of the messages is compressed into a summary message, keeping the
// working set inside the model's context while preserving the gist.
//
// All methods are safe for concurrent use.
type window struct {
	maxTokens      int
	thresholdRatio float64
	summariser     Summariser

	mu            sync.Mutex
	currentTokens int
	messages      []llm.Message
	summaries     []string
	generation    uint64
}

func newWindow(maxTokens int, summariser Summariser) *window {
	return &window{
		maxTokens:      maxTokens,
		thresholdRatio: 0.75,
		summariser:     summariser,
		messages:       make([]llm.Message, 0),
		summaries:      make([]string, 0),
	}
}

// add appends messages and compresses older turns when the token estimate
// crosses the threshold.
func (w *window) add(ctx context.Context, msgs ...llm.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, m := range msgs {
		w.messages = append(w.messages, m)
		w.currentTokens += estimateTokens(m)
	}

	threshold := int(float64(w.maxTokens) * w.thresholdRatio)
	if w.currentTokens > threshold && len(w.messages) > 1 {
		if err := w.summariseOldest(ctx); err != nil {
			return fmt.Errorf("chat: auto-summarise: %w", err)
		}
	}
	return nil
}

// snapshot returns the current history with accumulated summaries prepended
// as system context, ready to pass to the provider.
func (w *window) snapshot() []llm.Message {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := make([]llm.Message, 0, len(w.summaries)+len(w.messages))
	for _, s := range w.summaries {
		result = append(result, llm.Message{
			Role:    "system",
			Content: "[これまでの会話の要約]: " + s,
		})
	}
	result = append(result, w.messages...)
	return result
}

// tokenEstimate returns the current estimated token count including summaries.
func (w *window) tokenEstimate() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentTokens
}

func (w *window) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = w.messages[:0]
	w.summaries = w.summaries[:0]
	w.currentTokens = 0
	w.generation++
}

// summariseOldest compresses the oldest half of messages into a summary.
// Must be called with w.mu held. The messages to compress are detached from
// the window before the lock is released, so concurrent adds and resets see
// a consistent window while the LLM call is in flight.
func (w *window) summariseOldest(ctx context.Context) error {
	half := len(w.messages) / 2
	if half == 0 {
		half = 1
	}

	removed := make([]llm.Message, half)
	copy(removed, w.messages[:half])
	removedTokens := 0
	for _, m := range removed {
		removedTokens += estimateTokens(m)
	}
	w.messages = append(w.messages[:0:0], w.messages[half:]...)
	w.currentTokens -= removedTokens
	generation := w.generation

	// Release the lock for the (potentially slow) LLM call.
	w.mu.Unlock()
	summary, err := w.summariser.Summarise(ctx, removed)
	w.mu.Lock()

	if w.generation != generation {
		// The window was reset while the summary was in flight; the
		// detached turns no longer belong to this conversation.
		return nil
	}
	if err != nil {
		w.messages = append(removed, w.messages...)
		w.currentTokens += removedTokens
		return err
	}

	w.summaries = append(w.summaries, summary)
	w.currentTokens += len(summary) / charsPerToken

	return nil
}

// estimateTokens returns a rough token count for a single message.
func estimateTokens(m llm.Message) int {
	chars := len(m.Content) + len(m.Role)
	tokens := chars / charsPerToken
	if tokens == 0 && chars > 0 {
		tokens = 1
	}
	return tokens
}
