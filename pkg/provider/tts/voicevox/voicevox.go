// Package voicevox provides a VOICEVOX-backed TTS provider speaking the
// engine's two-step HTTP API: POST /audio_query to build a synthesis query
// for a given text and speaker, then POST /synthesis to render the query
// into a WAV clip. It implements the tts.Provider interface.
package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/setsuna-project/setsuna/pkg/provider/tts"
)

const defaultBaseURL = "http://127.0.0.1:50021"

// Option is a functional option for configuring the VOICEVOX Provider.
type Option func(*Provider)

// WithBaseURL overrides the engine base URL (default http://127.0.0.1:50021).
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithSpeedScale overrides the engine's default speaking rate. Valid values
// are 0.5 to 2.0; 1.0 is the engine default.
func WithSpeedScale(scale float64) Option {
	return func(p *Provider) {
		p.speedScale = scale
	}
}

// WithHTTPClient sets a custom HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// Provider implements tts.Provider backed by a VOICEVOX engine instance.
type Provider struct {
	baseURL    string
	speaker    int
	speedScale float64
	client     *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a VOICEVOX Provider for the given speaker id.
func New(speaker int, opts ...Option) (*Provider, error) {
	if speaker < 0 {
		return nil, errors.New("voicevox: speaker must not be negative")
	}
	p := &Provider{
		baseURL: defaultBaseURL,
		speaker: speaker,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "voicevox" }

// Synthesize runs the audio_query/synthesis round trip and returns WAV bytes.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("voicevox: text must not be empty")
	}

	query, err := p.audioQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if p.speedScale != 0 {
		query["speedScale"] = p.speedScale
	}

	wav, err := p.synthesis(ctx, query)
	if err != nil {
		return nil, err
	}
	return wav, nil
}

// audioQuery asks the engine to build a synthesis query for the text. The
// query is kept as a generic map so engine-version additions survive the
// round trip untouched.
func (p *Provider) audioQuery(ctx context.Context, text string) (map[string]any, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("speaker", strconv.Itoa(p.speaker))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/audio_query?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox: build audio_query request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: audio_query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("voicevox: audio_query returned %d: %s", resp.StatusCode, body)
	}

	var query map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&query); err != nil {
		return nil, fmt.Errorf("voicevox: decode audio_query response: %w", err)
	}
	return query, nil
}

// synthesis renders a previously built query into a WAV clip.
func (p *Provider) synthesis(ctx context.Context, query map[string]any) ([]byte, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("voicevox: marshal query: %w", err)
	}

	q := url.Values{}
	q.Set("speaker", strconv.Itoa(p.speaker))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/synthesis?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("voicevox: build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: synthesis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("voicevox: synthesis returned %d: %s", resp.StatusCode, body)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voicevox: read synthesis response: %w", err)
	}
	if len(wav) == 0 {
		return nil, errors.New("voicevox: synthesis returned empty audio")
	}
	return wav, nil
}
