package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func newStateSession(botID string) *discordgo.Session {
	s := &discordgo.Session{State: discordgo.NewState()}
	s.State.User = &discordgo.User{ID: botID}
	return s
}

func TestAddressedText(t *testing.T) {
	t.Parallel()

	s := newStateSession("bot-1")

	tests := []struct {
		name     string
		msg      *discordgo.MessageCreate
		wantText string
		wantOK   bool
	}{
		{
			name: "direct message is always addressed",
			msg: &discordgo.MessageCreate{Message: &discordgo.Message{
				Content: " こんにちは ",
			}},
			wantText: "こんにちは",
			wantOK:   true,
		},
		{
			name: "guild message with mention",
			msg: &discordgo.MessageCreate{Message: &discordgo.Message{
				GuildID:  "guild-1",
				Content:  "<@bot-1> おはよう",
				Mentions: []*discordgo.User{{ID: "bot-1"}},
			}},
			wantText: "おはよう",
			wantOK:   true,
		},
		{
			name: "guild message with nickname mention",
			msg: &discordgo.MessageCreate{Message: &discordgo.Message{
				GuildID:  "guild-1",
				Content:  "<@!bot-1> おはよう",
				Mentions: []*discordgo.User{{ID: "bot-1"}},
			}},
			wantText: "おはよう",
			wantOK:   true,
		},
		{
			name: "guild message without mention is ignored",
			msg: &discordgo.MessageCreate{Message: &discordgo.Message{
				GuildID: "guild-1",
				Content: "ただの雑談",
			}},
			wantOK: false,
		},
		{
			name: "mention of someone else is ignored",
			msg: &discordgo.MessageCreate{Message: &discordgo.Message{
				GuildID:  "guild-1",
				Content:  "<@other> やあ",
				Mentions: []*discordgo.User{{ID: "other"}},
			}},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, ok := addressedText(s, tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("addressed = %v, want %v", ok, tt.wantOK)
			}
			if ok && text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
		})
	}
}
