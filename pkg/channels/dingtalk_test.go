package channels

import (
	"testing"

	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"

	"github.com/sipeed/picochat/pkg/bus"
)

func TestDingTalkMessageGroup(t *testing.T) {
	data := &chatbot.BotCallbackDataModel{
		ConversationId:    "cid-1",
		ConversationType:  "2",
		ConversationTitle: "Ops",
		SenderStaffId:     "staff-1",
		SenderNick:        "Ada",
		IsInAtList:        true,
		Msgtype:           "text",
		Text:              chatbot.BotCallbackDataTextModel{Content: " /表情包 cat "},
	}

	senderID, chatID, content, meta := dingTalkMessage(data)
	if senderID != "staff-1" || chatID != "cid-1" || content != "/表情包 cat" {
		t.Fatalf("sender=%q chat=%q content=%q", senderID, chatID, content)
	}
	if meta[bus.MetaPeerKind] != bus.PeerGroup || meta[bus.MetaMentioned] != "true" || meta[bus.MetaTargetAlias] != "cid-1" {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestDingTalkMessageDirectUsesSender(t *testing.T) {
	data := &chatbot.BotCallbackDataModel{
		ConversationType: "1",
		SenderId:         "uid-9",
		SenderNick:       "Ada",
		Text:             chatbot.BotCallbackDataTextModel{Content: "ding"},
	}

	senderID, chatID, _, meta := dingTalkMessage(data)
	if senderID != "uid-9" || chatID != "uid-9" {
		t.Fatalf("sender=%q chat=%q", senderID, chatID)
	}
	if meta[bus.MetaPeerKind] != bus.PeerDirect || meta[bus.MetaTargetAlias] != "uid-9" {
		t.Fatalf("meta = %+v", meta)
	}
}
