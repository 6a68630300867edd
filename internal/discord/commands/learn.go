// Package commands implements the Setsuna slash command handlers.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/setsuna-project/setsuna/internal/discord"
	"github.com/setsuna-project/setsuna/internal/engine"
	"github.com/setsuna-project/setsuna/internal/search"
)

// SessionRunner is the engine surface the slash commands drive.
type SessionRunner interface {
	StartSession(ctx context.Context, req engine.SessionRequest) (string, error)
	SessionStatus(id string) (engine.Status, error)
	ListSessions() []engine.Status
}

// LearnCommands holds the dependencies for the /learn slash command.
type LearnCommands struct {
	runner SessionRunner
}

// NewLearnCommands creates a LearnCommands and registers its handler with
// the bot's router.
func NewLearnCommands(bot *discord.Bot, runner SessionRunner) *LearnCommands {
	lc := &LearnCommands{runner: runner}
	lc.Register(bot.Router())
	return lc
}

// Register registers the /learn command with the router.
func (lc *LearnCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("learn", lc.Definition(), func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		lc.handleLearn(s, i)
	})
}

// Definition returns the ApplicationCommand definition for Discord.
func (lc *LearnCommands) Definition() *discordgo.ApplicationCommand {
	minDepth := float64(1)
	return &discordgo.ApplicationCommand{
		Name:        "learn",
		Description: "テーマを指定して自律学習セッションを開始します",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "theme",
				Description: "調査したいテーマ",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "type",
				Description: "学習タイプ",
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "概要", Value: search.LearnOverview},
					{Name: "深掘り", Value: search.LearnDeepDive},
					{Name: "実用", Value: search.LearnPractical},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "depth",
				Description: "探索の深さ (1-5)",
				MinValue:    &minDepth,
				MaxValue:    5,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "minutes",
				Description: "時間制限 (分)",
			},
		},
	}
}

// handleLearn starts a learning session and reports the outcome as a
// follow-up once the session finishes.
func (lc *LearnCommands) handleLearn(rs discord.Responder, i *discordgo.InteractionCreate) {
	opts := optionMap(i)

	req := engine.SessionRequest{}
	if o, ok := opts["theme"]; ok {
		req.Theme = o.StringValue()
	}
	if o, ok := opts["type"]; ok {
		req.LearningType = o.StringValue()
	}
	if o, ok := opts["depth"]; ok {
		req.DepthLevel = int(o.IntValue())
	}
	if o, ok := opts["minutes"]; ok {
		req.TimeLimit = time.Duration(o.IntValue()) * time.Minute
	}

	if req.Theme == "" {
		discord.RespondEphemeral(rs, i, "テーマを指定してください。")
		return
	}

	// Sessions run for minutes; answer first and follow up when done.
	discord.DeferReply(rs, i)

	go func() {
		id, err := lc.runner.StartSession(context.Background(), req)
		if err != nil {
			discord.FollowUp(rs, i, fmt.Sprintf("学習セッションを開始できませんでした: %v", err))
			return
		}
		st, err := lc.runner.SessionStatus(id)
		if err != nil {
			discord.FollowUp(rs, i, fmt.Sprintf("セッション `%s` の状態を取得できませんでした: %v", id, err))
			return
		}
		discord.FollowUp(rs, i, formatSessionResult(st))
	}()
}

func formatSessionResult(st engine.Status) string {
	return fmt.Sprintf(
		"学習セッション完了!\n**テーマ:** %s\n**ID:** `%s`\n**クエリ数:** %d\n**保存した知識:** %d 件\n**コスト:** $%.4f\n**終了理由:** %s",
		st.Theme, st.ID, st.Queries, st.Items, st.Spend, st.StopReason,
	)
}

// optionMap indexes the interaction's options by name.
func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	data := i.ApplicationCommandData()
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options))
	for _, o := range data.Options {
		m[o.Name] = o
	}
	return m
}
