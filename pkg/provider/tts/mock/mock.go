// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled WAV bytes and to verify the text passed
// to the backend.
//
// Example:
//
//	p := &mock.Provider{SynthesizeAudio: []byte("RIFF....")}
//	wav, _ := p.Synthesize(ctx, "こんにちは")
package mock

import (
	"context"
	"sync"

	"github.com/setsuna-project/setsuna/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeAudio is the WAV payload returned by Synthesize.
	SynthesizeAudio []byte

	// SynthesizeFunc, if non-nil, is called instead of returning
	// SynthesizeAudio. SynthesizeErr is ignored when set.
	SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// ProviderName overrides the value returned by Name. Defaults to "mock".
	ProviderName string

	// SynthesizeCalls records every invocation of Synthesize.
	SynthesizeCalls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text})
	fn := p.SynthesizeFunc
	audio := p.SynthesizeAudio
	err := p.SynthesizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// Calls returns a copy of all recorded Synthesize invocations.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}
