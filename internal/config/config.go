// Package config provides the configuration schema and loader for the
// Setsuna bot. Configuration is an explicit value constructed in main and
// passed into each component; there is no process-global config state.
package config

import (
	"github.com/setsuna-project/setsuna/internal/budget"
	"github.com/setsuna-project/setsuna/internal/session"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a YAML
// file via [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discord   DiscordConfig   `yaml:"discord"`
	Providers ProvidersConfig `yaml:"providers"`
	Persona   PersonaConfig   `yaml:"persona"`
	Data      DataConfig      `yaml:"data"`
	Budget    budget.Limits   `yaml:"budget"`
	Session   session.Policy  `yaml:"session_policy"`
	Learning  LearningConfig  `yaml:"learning"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds network and logging settings for the status server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on
	// (e.g., ":8080"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds the Discord front-end settings. An empty token
// disables the bot; the learning engine and web server still run.
type DiscordConfig struct {
	// Token is the bot token.
	Token string `yaml:"token"`

	// GuildID scopes slash-command registration to one guild. Empty
	// registers the commands globally.
	GuildID string `yaml:"guild_id"`
}

// ProvidersConfig selects the external AI providers.
type ProvidersConfig struct {
	LLM LLMConfig `yaml:"llm"`
	TTS TTSConfig `yaml:"tts"`
}

// LLMConfig configures the chat-completion backend.
type LLMConfig struct {
	// Name selects the provider implementation. Currently "openai".
	Name string `yaml:"name"`

	// APIKey is the provider credential.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the model identifier (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// FallbackModel, when set, is tried for completions whenever the
	// primary model fails or its circuit is open.
	FallbackModel string `yaml:"fallback_model"`

	// CostPerThousandTokens converts token usage into ledger cost.
	CostPerThousandTokens float64 `yaml:"cost_per_1k_tokens"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	// Name selects the provider implementation. Currently "voicevox".
	Name string `yaml:"name"`

	// BaseURL is the synthesis engine address
	// (e.g., "http://localhost:50021").
	BaseURL string `yaml:"base_url"`

	// Speaker is the VOICEVOX speaker id.
	Speaker int `yaml:"speaker"`

	// SpeedScale adjusts speaking rate in [0.5, 2.0]. Zero means default.
	SpeedScale float64 `yaml:"speed_scale"`
}

// PersonaConfig describes the Setsuna character used by the chat engine.
type PersonaConfig struct {
	// Name is the persona's display name. Default: "せつな".
	Name string `yaml:"name"`

	// SystemPrompt is the character sheet injected as the system message.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxContextTokens bounds the conversation window per user.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// DataConfig locates the persistent state.
type DataConfig struct {
	// Dir is the root data directory. Default: "data/activity_knowledge".
	Dir string `yaml:"dir"`
}

// LearningConfig tunes the activity learning engine.
type LearningConfig struct {
	// QueriesPerSession caps generated queries per session.
	QueriesPerSession int `yaml:"queries_per_session"`

	// ResultsPerQuery caps stored hits per query.
	ResultsPerQuery int `yaml:"results_per_query"`

	// CostPerSearch is the accounting cost of one search batch.
	CostPerSearch float64 `yaml:"cost_per_search"`

	// DefaultTimeLimitMin bounds a session, in minutes, when the request
	// carries no limit.
	DefaultTimeLimitMin int `yaml:"default_time_limit_min"`

	// CleanupAfterDays ages out low-importance knowledge items. Zero
	// disables cleanup.
	CleanupAfterDays int `yaml:"cleanup_after_days"`
}

// SearchConfig configures the web search engines.
type SearchConfig struct {
	Google GoogleConfig `yaml:"google"`

	// DuckDuckGo enables the Instant Answer engine. It needs no
	// credentials and defaults to on unless set explicitly.
	DuckDuckGo *bool `yaml:"duckduckgo"`
}

// GoogleConfig holds Google Custom Search credentials. Both fields must be
// set together; when empty the engine is skipped.
type GoogleConfig struct {
	APIKey string `yaml:"api_key"`
	CX     string `yaml:"cx"`
}

// DuckDuckGoEnabled resolves the optional flag.
func (s SearchConfig) DuckDuckGoEnabled() bool {
	return s.DuckDuckGo == nil || *s.DuckDuckGo
}
