package commands

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/setsuna-project/setsuna/internal/budget"
	"github.com/setsuna-project/setsuna/internal/discord"
	"github.com/setsuna-project/setsuna/internal/engine"
)

// BudgetReporter is the budget surface the /status command reads.
type BudgetReporter interface {
	UsageSummary(period budget.Period, sessionID string) budget.Summary
}

// StatusCommands holds the dependencies for the /status slash command.
type StatusCommands struct {
	runner SessionRunner
	budget BudgetReporter
}

// NewStatusCommands creates a StatusCommands and registers its handler with
// the bot's router.
func NewStatusCommands(bot *discord.Bot, runner SessionRunner, budget BudgetReporter) *StatusCommands {
	sc := &StatusCommands{runner: runner, budget: budget}
	sc.Register(bot.Router())
	return sc
}

// Register registers the /status command with the router.
func (sc *StatusCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("status", sc.Definition(), func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		sc.handleStatus(s, i)
	})
}

// Definition returns the ApplicationCommand definition for Discord.
func (sc *StatusCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "status",
		Description: "学習セッションと予算の状況を表示します",
	}
}

func (sc *StatusCommands) handleStatus(rs discord.Responder, i *discordgo.InteractionCreate) {
	embed := &discordgo.MessageEmbed{
		Title:  "せつなの状況",
		Fields: []*discordgo.MessageEmbedField{},
	}

	sessions := sc.runner.ListSessions()
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "学習セッション",
		Value: formatSessionList(sessions),
	})

	if sc.budget != nil {
		daily := sc.budget.UsageSummary(budget.PeriodDaily, "")
		monthly := sc.budget.UsageSummary(budget.PeriodMonthly, "")
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "予算",
			Value: fmt.Sprintf("今日: $%.4f / $%.2f\n今月: $%.4f / $%.2f",
				daily.CurrentUsage, daily.Limit, monthly.CurrentUsage, monthly.Limit),
		})
	}

	discord.RespondEmbed(rs, i, embed)
}

func formatSessionList(sessions []engine.Status) string {
	if len(sessions) == 0 {
		return "まだありません"
	}
	const max = 5
	var sb strings.Builder
	shown := sessions
	if len(shown) > max {
		shown = shown[len(shown)-max:]
	}
	for _, st := range shown {
		fmt.Fprintf(&sb, "`%s` %s (%s, %d件)\n", st.ID, st.Theme, st.State, st.Items)
	}
	if len(sessions) > max {
		fmt.Fprintf(&sb, "...他 %d 件", len(sessions)-max)
	}
	return strings.TrimSpace(sb.String())
}
