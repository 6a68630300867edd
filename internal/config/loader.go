package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Known provider names per kind. Unrecognised names only warn, so a
// third-party provider wired in code does not fail validation.
var validProviderNames = map[string][]string{
	"llm": {"openai"},
	"tts": {"voicevox"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills the fields that have a sensible stock value.
func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data/activity_knowledge"
	}
	if cfg.Persona.Name == "" {
		cfg.Persona.Name = "せつな"
	}
	if cfg.Persona.MaxContextTokens <= 0 {
		cfg.Persona.MaxContextTokens = 4096
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("providers.llm.api_key is required when providers.llm.name is set"))
	}
	if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("providers.llm.model is required when providers.llm.name is set"))
	}
	if cfg.Providers.TTS.Name != "" && cfg.Providers.TTS.BaseURL == "" {
		errs = append(errs, fmt.Errorf("providers.tts.base_url is required when providers.tts.name is set"))
	}
	if s := cfg.Providers.TTS.SpeedScale; s != 0 && (s < 0.5 || s > 2.0) {
		errs = append(errs, fmt.Errorf("providers.tts.speed_scale %.2f is out of range [0.5, 2.0]", s))
	}

	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; the Discord front-end is disabled")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; chat responses and LLM query generation are disabled")
	}

	if (cfg.Search.Google.APIKey == "") != (cfg.Search.Google.CX == "") {
		errs = append(errs, fmt.Errorf("search.google.api_key and search.google.cx must be set together"))
	}
	if cfg.Search.Google.APIKey == "" && !cfg.Search.DuckDuckGoEnabled() {
		errs = append(errs, fmt.Errorf("no search engine configured: set search.google or enable search.duckduckgo"))
	}

	for _, lim := range []struct {
		name  string
		value float64
	}{
		{"budget.per_session", cfg.Budget.PerSession},
		{"budget.daily", cfg.Budget.Daily},
		{"budget.monthly", cfg.Budget.Monthly},
	} {
		if lim.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", lim.name))
		}
	}
	if r := cfg.Budget.AlertRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("budget.alert_ratio %.2f is out of range [0, 1]", r))
	}

	if cfg.Learning.CleanupAfterDays < 0 {
		errs = append(errs, fmt.Errorf("learning.cleanup_after_days must not be negative"))
	}
	if cfg.Learning.DefaultTimeLimitMin < 0 {
		errs = append(errs, fmt.Errorf("learning.default_time_limit_min must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and unknown for
// the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known := validProviderNames[kind]
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
