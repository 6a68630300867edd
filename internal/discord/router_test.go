package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestRouter_DispatchesByKey(t *testing.T) {
	t.Parallel()

	router := NewCommandRouter()
	var got string
	router.RegisterCommand("learn", &discordgo.ApplicationCommand{Name: "learn"},
		func(s *discordgo.Session, i *discordgo.InteractionCreate) { got = "learn" })
	router.RegisterHandler("session/start",
		func(s *discordgo.Session, i *discordgo.InteractionCreate) { got = "session/start" })

	router.Handle(nil, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{Name: "learn"},
		},
	})
	if got != "learn" {
		t.Errorf("dispatched %q, want learn", got)
	}

	router.Handle(nil, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name: "session",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "start", Type: discordgo.ApplicationCommandOptionSubCommand},
				},
			},
		},
	})
	if got != "session/start" {
		t.Errorf("dispatched %q, want session/start", got)
	}
}

func TestRouter_ApplicationCommandsDeduplicates(t *testing.T) {
	t.Parallel()

	router := NewCommandRouter()
	def := &discordgo.ApplicationCommand{Name: "session"}
	noop := func(s *discordgo.Session, i *discordgo.InteractionCreate) {}
	router.RegisterCommand("session/start", def, noop)
	router.RegisterCommand("session/stop", def, noop)
	router.RegisterHandler("session/recap", noop)

	cmds := router.ApplicationCommands()
	if len(cmds) != 1 {
		t.Fatalf("ApplicationCommands returned %d definitions, want 1", len(cmds))
	}
	if cmds[0].Name != "session" {
		t.Errorf("command name = %q", cmds[0].Name)
	}
}

func TestInteractionKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
		want string
	}{
		{
			name: "top-level command",
			data: discordgo.ApplicationCommandInteractionData{Name: "status"},
			want: "status",
		},
		{
			name: "subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "session",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "start", Type: discordgo.ApplicationCommandOptionSubCommand},
				},
			},
			want: "session/start",
		},
		{
			name: "non-subcommand option",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "recall",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "query", Type: discordgo.ApplicationCommandOptionString},
				},
			},
			want: "recall",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := interactionKey(tt.data); got != tt.want {
				t.Errorf("interactionKey = %q, want %q", got, tt.want)
			}
		})
	}
}
