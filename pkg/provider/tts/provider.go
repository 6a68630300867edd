// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local VOICEVOX
// engine) and turns short text into a complete WAV clip. Synthesis here is
// request/response rather than streaming: replies are a sentence or two and
// Discord voice attachments want a finished file anyway.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text into a complete WAV clip. It returns an error
	// if the backend cannot be reached or rejects the text; an empty text
	// value is an error rather than an empty clip.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// Name returns the provider identifier used in logs and metrics.
	Name() string
}
