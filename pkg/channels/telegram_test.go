package channels

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sipeed/picochat/pkg/bus"
)

func TestTelegramMetadataGroupMention(t *testing.T) {
	msg := &tgbotapi.Message{
		MessageID: 9,
		From:      &tgbotapi.User{ID: 1, FirstName: "Ada", UserName: "ada"},
		Chat:      &tgbotapi.Chat{ID: -100, Type: "supergroup", Title: "Makers"},
		Text:      "@picochat_bot /c hi",
	}

	meta := telegramMetadata(msg, "picochat_bot")
	if meta[bus.MetaPeerKind] != bus.PeerGroup || meta[bus.MetaMentioned] != "true" {
		t.Fatalf("meta = %+v", meta)
	}
	if meta[bus.MetaSelfName] != "picochat_bot" || meta[bus.MetaTargetAlias] != "-100" {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestTelegramMetadataDirect(t *testing.T) {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 1, FirstName: "Ada", UserName: "ada"},
		Chat: &tgbotapi.Chat{ID: 1, Type: "private"},
		Text: "ding",
	}

	meta := telegramMetadata(msg, "picochat_bot")
	if meta[bus.MetaPeerKind] != bus.PeerDirect || meta[bus.MetaTargetAlias] != "1" {
		t.Fatalf("meta = %+v", meta)
	}
	if meta[bus.MetaMentioned] != "" {
		t.Fatal("direct message flagged as mention")
	}
}
