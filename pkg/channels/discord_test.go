package channels

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/picochat/pkg/bus"
)

func TestDiscordMessageRewritesSelfMention(t *testing.T) {
	self := &discordgo.User{ID: "42", Username: "picochat"}
	m := &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   "<@42> tell me a joke",
		Author:    &discordgo.User{ID: "7", Username: "ada"},
		Mentions:  []*discordgo.User{self},
	}

	content, meta := discordMessage(m, self)
	if content != "@picochat tell me a joke" {
		t.Fatalf("content = %q", content)
	}
	if meta[bus.MetaMentioned] != "true" || meta[bus.MetaSelfName] != "picochat" || meta[bus.MetaPeerKind] != bus.PeerGroup {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestDiscordMessageDirect(t *testing.T) {
	m := &discordgo.Message{
		ID:        "m2",
		ChannelID: "dm",
		Content:   "/c hi",
		Author:    &discordgo.User{ID: "7", Username: "ada"},
	}

	content, meta := discordMessage(m, nil)
	if content != "/c hi" || meta[bus.MetaPeerKind] != bus.PeerDirect || meta[bus.MetaTargetAlias] != "dm" {
		t.Fatalf("content = %q, meta = %+v", content, meta)
	}
}
