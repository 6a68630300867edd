// Package discord provides the Discord front-end for Setsuna. It owns the
// discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, and forwards chat messages to the persona engine.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/setsuna-project/setsuna/internal/chat"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// GuildID is the target guild for slash command registration.
	GuildID string `yaml:"guild_id"`
}

// Bot owns the Discord gateway connection. It replies in the Setsuna
// persona to direct messages and mentions, and dispatches slash commands
// through its router.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	chat      *chat.Engine
	guildID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord, and registers the gateway
// handlers. chatEngine may be nil; messages are then ignored and only slash
// commands are served.
func New(_ context.Context, cfg Config, chatEngine *chat.Engine) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		chat:    chatEngine,
		guildID: cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(b.onMessageCreate)

	return b, nil
}

// GuildID returns the target guild ID.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Run registers slash commands with the Discord API and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord and unregisters commands.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}

// onMessageCreate forwards a user message to the chat engine when the bot is
// addressed: always in DMs, otherwise only when mentioned.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if b.chat == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	text, addressed := addressedText(s, m)
	if !addressed {
		return
	}

	reply, err := b.chat.Respond(context.Background(), m.Author.ID, text)
	if err != nil {
		slog.Warn("discord: chat respond failed", "user_id", m.Author.ID, "err", err)
		reply = "ごめんなさい、いまは返事できません。"
	}
	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		slog.Warn("discord: send reply failed", "channel_id", m.ChannelID, "err", err)
	}
}

// addressedText reports whether the message addresses the bot and returns
// the message text with the leading mention stripped.
func addressedText(s *discordgo.Session, m *discordgo.MessageCreate) (string, bool) {
	// Guild-less messages are DMs.
	if m.GuildID == "" {
		return strings.TrimSpace(m.Content), true
	}
	if s.State.User == nil {
		return "", false
	}
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			text := strings.ReplaceAll(m.Content, "<@"+u.ID+">", "")
			text = strings.ReplaceAll(text, "<@!"+u.ID+">", "")
			return strings.TrimSpace(text), true
		}
	}
	return "", false
}
