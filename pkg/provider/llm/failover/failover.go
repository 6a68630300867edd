// Package failover composes multiple llm.Provider backends into one. The
// primary is tried first; on failure (or while its circuit is open) the
// request moves to the next fallback in registration order.
package failover

import (
	"context"

	"github.com/setsuna-project/setsuna/internal/resilience"
	"github.com/setsuna-project/setsuna/pkg/provider/llm"
)

// Provider is a failover chain of llm.Provider backends. Token counting and
// capability queries always answer from the primary, so context budgeting
// stays stable regardless of which backend served the last completion.
type Provider struct {
	primary llm.Provider
	chain   *resilience.Chain[llm.Provider]
}

var _ llm.Provider = (*Provider)(nil)

// New creates a failover Provider with primary as the first entry. settings
// configures the per-backend circuit breakers.
func New(primary llm.Provider, settings resilience.Settings) *Provider {
	return &Provider{
		primary: primary,
		chain:   resilience.NewChain(primary.Name(), primary, settings),
	}
}

// AddFallback appends a backend tried after the primary. Not safe to call
// once the provider is in service.
func (p *Provider) AddFallback(backend llm.Provider) {
	p.chain.Add(backend.Name(), backend)
}

// Complete implements llm.Provider. Each backend is tried in order until one
// returns a completion.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return resilience.DoWithResult(p.chain, func(backend llm.Provider) (*llm.CompletionResponse, error) {
		return backend.Complete(ctx, req)
	})
}

// CountTokens implements llm.Provider using the primary's tokeniser.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	return p.primary.CountTokens(messages)
}

// Capabilities implements llm.Provider, reporting the primary's limits.
func (p *Provider) Capabilities() llm.Capabilities {
	return p.primary.Capabilities()
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "failover(" + p.primary.Name() + ")" }
