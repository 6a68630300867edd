package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/setsuna-project/setsuna/internal/discord"
	"github.com/setsuna-project/setsuna/pkg/knowledge"
)

// RecallCommands holds the dependencies for the /recall slash command.
type RecallCommands struct {
	store knowledge.Store
}

// NewRecallCommands creates a RecallCommands and registers its handler with
// the bot's router.
func NewRecallCommands(bot *discord.Bot, store knowledge.Store) *RecallCommands {
	rc := &RecallCommands{store: store}
	rc.Register(bot.Router())
	return rc
}

// Register registers the /recall command with the router.
func (rc *RecallCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("recall", rc.Definition(), func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		rc.handleRecall(s, i)
	})
}

// Definition returns the ApplicationCommand definition for Discord.
func (rc *RecallCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "recall",
		Description: "学習した知識を検索します",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "検索語",
				Required:    true,
			},
		},
	}
}

func (rc *RecallCommands) handleRecall(rs discord.Responder, i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	query := ""
	if o, ok := opts["query"]; ok {
		query = o.StringValue()
	}
	if strings.TrimSpace(query) == "" {
		discord.RespondEphemeral(rs, i, "検索語を指定してください。")
		return
	}

	results, err := rc.store.Search(context.Background(), query, knowledge.SearchOpts{Limit: 5})
	if err != nil {
		discord.RespondError(rs, i, err)
		return
	}
	if len(results) == 0 {
		discord.RespondEphemeral(rs, i, fmt.Sprintf("「%s」に関する知識はまだありません。", query))
		return
	}

	embed := &discordgo.MessageEmbed{Title: fmt.Sprintf("「%s」の検索結果", query)}
	for _, r := range results {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("関連度 %.2f", r.Relevance),
			Value: truncate(r.Item.Content, 200),
		})
	}
	discord.RespondEmbed(rs, i, embed)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
