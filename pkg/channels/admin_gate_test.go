package channels

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/eatmoreapple/openwechat"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"

	"github.com/sipeed/picochat/pkg/agent"
	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/tools"
)

// pingReplies publishes one inbound message the way a transport does and
// returns what the dispatcher answers when "boss" is the admin.
func pingReplies(t *testing.T, channel, senderID, chatID, content string, meta map[string]string) []bus.OutboundMessage {
	t.Helper()

	mb := bus.NewMessageBus()
	NewBaseChannel(channel, nil, mb, nil).HandleMessage(senderID, chatID, content, nil, meta)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected inbound message")
	}

	route, ok := agent.NewRouter("/c").Route(msg)
	if !ok {
		t.Fatalf("message dropped by router: %+v", msg)
	}
	d := agent.NewDispatcher(tools.NewToolRegistry(), agent.DispatcherOptions{
		Admin:       "boss",
		PingKeyword: "ding",
		PingReply:   "dong",
	})
	replies, _ := d.Dispatch(ctx, route)
	return replies
}

func TestAdminGateIgnoresUserChosenNames(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		sender  string
		chatID  string
		meta    func() map[string]string
	}{
		{
			name:    "wechat nickname",
			channel: "wechat",
			sender:  "@stranger",
			chatID:  "@stranger",
			meta: func() map[string]string {
				return wechatInbound{
					IsText:   true,
					SenderID: "@stranger",
					ChatID:   "@stranger",
					Alias:    contactAlias(&openwechat.User{UserName: "@stranger", NickName: "boss"}),
				}.metadata()
			},
		},
		{
			name:    "dingtalk sender nick",
			channel: "dingtalk",
			sender:  "uid-1",
			chatID:  "uid-1",
			meta: func() map[string]string {
				_, _, _, meta := dingTalkMessage(&chatbot.BotCallbackDataModel{
					ConversationType: "1",
					SenderId:         "uid-1",
					SenderNick:       "boss",
					Text:             chatbot.BotCallbackDataTextModel{Content: "ding"},
				})
				return meta
			},
		},
		{
			name:    "dingtalk conversation title",
			channel: "dingtalk",
			sender:  "uid-1",
			chatID:  "cid-1",
			meta: func() map[string]string {
				_, _, _, meta := dingTalkMessage(&chatbot.BotCallbackDataModel{
					ConversationType:  "2",
					ConversationId:    "cid-1",
					ConversationTitle: "boss",
					SenderId:          "uid-1",
					Text:              chatbot.BotCallbackDataTextModel{Content: "ding"},
				})
				return meta
			},
		},
		{
			name:    "telegram group title",
			channel: "telegram",
			sender:  "5|mallory",
			chatID:  "-100",
			meta: func() map[string]string {
				return telegramMetadata(&tgbotapi.Message{
					From: &tgbotapi.User{ID: 5, UserName: "boss"},
					Chat: &tgbotapi.Chat{ID: -100, Type: "group", Title: "boss"},
					Text: "ding",
				}, "picochat_bot")
			},
		},
		{
			name:    "discord username",
			channel: "discord",
			sender:  "7|boss",
			chatID:  "dm",
			meta: func() map[string]string {
				_, meta := discordMessage(&discordgo.Message{
					ChannelID: "dm",
					Content:   "ding",
					Author:    &discordgo.User{ID: "7", Username: "boss"},
				}, nil)
				return meta
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := pingReplies(t, tt.channel, tt.sender, tt.chatID, "ding", tt.meta())
			if len(replies) != 0 {
				t.Fatalf("replies = %+v, want none for a non-admin", replies)
			}
		})
	}
}

func TestAdminGateAcceptsWeChatRemarkName(t *testing.T) {
	meta := wechatInbound{
		IsText:   true,
		SenderID: "@owner",
		ChatID:   "@owner",
		Alias:    contactAlias(&openwechat.User{UserName: "@owner", NickName: "Ada", RemarkName: "boss"}),
	}.metadata()

	replies := pingReplies(t, "wechat", "@owner", "@owner", "ding", meta)
	if len(replies) != 1 || replies[0].Content != "dong" {
		t.Fatalf("replies = %+v, want dong", replies)
	}
}
