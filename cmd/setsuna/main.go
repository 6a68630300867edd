// Command setsuna is the main entry point for the Setsuna bot: the learning
// engine, the Discord persona front-end, and the status web server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/setsuna-project/setsuna/internal/budget"
	"github.com/setsuna-project/setsuna/internal/chat"
	"github.com/setsuna-project/setsuna/internal/config"
	discordbot "github.com/setsuna-project/setsuna/internal/discord"
	"github.com/setsuna-project/setsuna/internal/discord/commands"
	"github.com/setsuna-project/setsuna/internal/engine"
	"github.com/setsuna-project/setsuna/internal/health"
	"github.com/setsuna-project/setsuna/internal/observe"
	"github.com/setsuna-project/setsuna/internal/resilience"
	"github.com/setsuna-project/setsuna/internal/search"
	"github.com/setsuna-project/setsuna/internal/session"
	"github.com/setsuna-project/setsuna/internal/web"
	"github.com/setsuna-project/setsuna/pkg/knowledge/sqlite"
	"github.com/setsuna-project/setsuna/pkg/provider/llm"
	"github.com/setsuna-project/setsuna/pkg/provider/llm/failover"
	"github.com/setsuna-project/setsuna/pkg/provider/llm/openai"
	"github.com/setsuna-project/setsuna/pkg/provider/tts"
	"github.com/setsuna-project/setsuna/pkg/provider/tts/voicevox"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "setsuna: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "setsuna: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("setsuna starting",
		"config", *configPath,
		"data_dir", cfg.Data.Dir,
		"listen_addr", cfg.Server.ListenAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "setsuna"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// Persistent state.
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		slog.Error("failed to create data directory", "dir", cfg.Data.Dir, "err", err)
		return 1
	}
	store, err := sqlite.Open(filepath.Join(cfg.Data.Dir, "knowledge.db"))
	if err != nil {
		slog.Error("failed to open knowledge store", "err", err)
		return 1
	}
	defer store.Close()

	relations, err := session.NewManager(cfg.Data.Dir, cfg.Session, store)
	if err != nil {
		slog.Error("failed to open session relationships", "err", err)
		return 1
	}

	budgetMgr, err := budget.NewManager(
		filepath.Join(cfg.Data.Dir, "budget.jsonl"),
		cfg.Budget,
		budget.WithAlertFunc(func(scope string, usage, limit float64) {
			slog.Warn("budget alert", "scope", scope, "usage", usage, "limit", limit)
		}),
		budget.WithStopFunc(func(scope string, usage, limit float64) {
			slog.Error("budget limit reached", "scope", scope, "usage", usage, "limit", limit)
		}),
		budget.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("failed to open budget ledger", "err", err)
		return 1
	}

	// Providers.
	llmProvider := buildLLM(cfg.Providers.LLM)
	synth := buildTTS(cfg.Providers.TTS)

	searcher, err := buildSearcher(cfg.Search, metrics)
	if err != nil {
		slog.Error("failed to build search engines", "err", err)
		return 1
	}

	// Learning engine.
	eng, err := engine.New(engine.Config{
		DataDir:           cfg.Data.Dir,
		QueriesPerSession: cfg.Learning.QueriesPerSession,
		ResultsPerQuery:   cfg.Learning.ResultsPerQuery,
		CostPerSearch:     cfg.Learning.CostPerSearch,
		DefaultTimeLimit:  time.Duration(cfg.Learning.DefaultTimeLimitMin) * time.Minute,
		Metrics:           metrics,
	}, store, relations, budgetMgr, searcher, search.NewQueryGenerator(llmProvider))
	if err != nil {
		slog.Error("failed to initialise learning engine", "err", err)
		return 1
	}

	// Chat persona.
	var chatEngine *chat.Engine
	if llmProvider != nil {
		chatEngine, err = chat.New(chat.Config{
			PersonaName:           cfg.Persona.Name,
			SystemPrompt:          cfg.Persona.SystemPrompt,
			MaxContextTokens:      cfg.Persona.MaxContextTokens,
			CostPerThousandTokens: cfg.Providers.LLM.CostPerThousandTokens,
			Metrics:               metrics,
		}, llmProvider, budgetMgr)
		if err != nil {
			slog.Error("failed to initialise chat engine", "err", err)
			return 1
		}
	} else {
		slog.Warn("no LLM provider configured; chat replies disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	// Discord front-end.
	var bot *discordbot.Bot
	if cfg.Discord.Token != "" {
		bot, err = discordbot.New(gctx, discordbot.Config{
			Token:   cfg.Discord.Token,
			GuildID: cfg.Discord.GuildID,
		}, chatEngine)
		if err != nil {
			slog.Error("failed to create Discord bot", "err", err)
			return 1
		}
		commands.NewLearnCommands(bot, eng)
		commands.NewStatusCommands(bot, eng, budgetMgr)
		commands.NewRecallCommands(bot, store)
		slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)

		g.Go(func() error {
			if err := bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("discord bot: %w", err)
			}
			return nil
		})
	}

	// Web server.
	if cfg.Server.ListenAddr != "" {
		healthHandler := health.New(
			health.StoreChecker(store),
			health.DataDirChecker(cfg.Data.Dir),
		)
		srv := web.NewServer(web.Config{
			Addr:    cfg.Server.ListenAddr,
			DataDir: cfg.Data.Dir,
		}, eng.Events(), healthHandler, metrics, synth)

		g.Go(func() error {
			if err := srv.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
	}

	// Periodic cleanup of aged low-importance knowledge.
	if cfg.Learning.CleanupAfterDays > 0 {
		maxAge := time.Duration(cfg.Learning.CleanupAfterDays) * 24 * time.Hour
		g.Go(func() error {
			runCleanup(gctx, store, maxAge)
			return nil
		})
	}

	slog.Info("setsuna ready")
	err = g.Wait()

	if bot != nil {
		if closeErr := bot.Close(); closeErr != nil {
			slog.Warn("discord bot close error", "err", closeErr)
		}
	}

	// Final JSON snapshot next to the database for offline inspection.
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if exportErr := store.ExportSnapshot(sctx, filepath.Join(cfg.Data.Dir, "snapshot")); exportErr != nil {
		slog.Warn("knowledge snapshot export failed", "err", exportErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildLLM returns the configured chat-completion provider, or nil.
func buildLLM(cfg config.LLMConfig) llm.Provider {
	if cfg.Name != "openai" || cfg.APIKey == "" {
		return nil
	}
	var opts []openai.Option
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	p, err := openai.New(cfg.APIKey, cfg.Model, opts...)
	if err != nil {
		slog.Warn("failed to create LLM provider", "err", err)
		return nil
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Name, "model", cfg.Model)

	if cfg.FallbackModel == "" || cfg.FallbackModel == cfg.Model {
		return p
	}
	fb, err := openai.New(cfg.APIKey, cfg.FallbackModel, opts...)
	if err != nil {
		slog.Warn("failed to create fallback LLM provider", "err", err)
		return p
	}
	chain := failover.New(p, resilience.Settings{})
	chain.AddFallback(fb)
	slog.Info("llm failover enabled", "primary", cfg.Model, "fallback", cfg.FallbackModel)
	return chain
}

// buildTTS returns the configured speech synthesis provider, or nil.
func buildTTS(cfg config.TTSConfig) tts.Provider {
	if cfg.Name != "voicevox" {
		return nil
	}
	opts := []voicevox.Option{voicevox.WithBaseURL(cfg.BaseURL)}
	if cfg.SpeedScale != 0 {
		opts = append(opts, voicevox.WithSpeedScale(cfg.SpeedScale))
	}
	p, err := voicevox.New(cfg.Speaker, opts...)
	if err != nil {
		slog.Warn("failed to create TTS provider", "err", err)
		return nil
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Name, "speaker", cfg.Speaker)
	return p
}

// buildSearcher assembles the multi-engine searcher from the configured
// engines. Config validation guarantees at least one engine is available.
func buildSearcher(cfg config.SearchConfig, metrics *observe.Metrics) (search.Engine, error) {
	var engines []search.Engine
	if cfg.Google.APIKey != "" && cfg.Google.CX != "" {
		g, err := search.NewGoogle(cfg.Google.APIKey, cfg.Google.CX)
		if err != nil {
			return nil, err
		}
		engines = append(engines, g)
	}
	if cfg.DuckDuckGoEnabled() {
		engines = append(engines, search.NewDuckDuckGo())
	}
	return search.NewMulti(engines, resilience.Settings{}, search.WithMetrics(metrics))
}

// runCleanup ages out low-importance knowledge once a day.
func runCleanup(ctx context.Context, store *sqlite.Store, maxAge time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Cleanup(ctx, maxAge)
			if err != nil {
				slog.Warn("knowledge cleanup failed", "err", err)
				continue
			}
			if removed > 0 {
				slog.Info("knowledge cleanup", "removed", removed, "max_age", maxAge)
			}
		}
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
