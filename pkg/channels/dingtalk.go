package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/client"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
)

// DingTalkChannel receives robot callbacks over the stream API and replies
// through the per-conversation session webhook.
type DingTalkChannel struct {
	*BaseChannel
	config         config.DingTalkConfig
	streamClient   *client.StreamClient
	replier        *chatbot.ChatbotReplier
	sessionWebhook sync.Map // chatID -> webhook URL
}

func NewDingTalkChannel(cfg config.DingTalkConfig, messageBus *bus.MessageBus) (*DingTalkChannel, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("dingtalk client_id and client_secret are required")
	}
	return &DingTalkChannel{
		BaseChannel: NewBaseChannel("dingtalk", cfg, messageBus, cfg.AllowFrom),
		config:      cfg,
		replier:     chatbot.NewChatbotReplier(),
	}, nil
}

func (c *DingTalkChannel) Start(ctx context.Context) error {
	logger.InfoC("dingtalk", "Starting DingTalk channel (stream mode)")

	c.streamClient = client.NewStreamClient(
		client.WithAppCredential(client.NewAppCredentialConfig(c.config.ClientID, c.config.ClientSecret)),
	)
	c.streamClient.RegisterChatBotCallbackRouter(c.onChatBotMessageReceived)

	if err := c.streamClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dingtalk stream client: %w", err)
	}

	c.setRunning(true)
	logger.InfoC("dingtalk", "DingTalk channel started")
	return nil
}

func (c *DingTalkChannel) Stop(ctx context.Context) error {
	logger.InfoC("dingtalk", "Stopping DingTalk channel")
	c.setRunning(false)
	if c.streamClient != nil {
		c.streamClient.Close()
	}
	return nil
}

func (c *DingTalkChannel) onChatBotMessageReceived(ctx context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
	senderID, chatID, content, meta := dingTalkMessage(data)
	if data.SessionWebhook != "" {
		c.sessionWebhook.Store(chatID, data.SessionWebhook)
	}
	c.HandleMessage(senderID, chatID, content, nil, meta)
	return []byte(""), nil
}

// dingTalkMessage maps a callback to the bus. Group conversations carry
// conversation type "2" and only reach the robot when it is @-ed.
func dingTalkMessage(data *chatbot.BotCallbackDataModel) (senderID, chatID, content string, meta map[string]string) {
	senderID = data.SenderStaffId
	if senderID == "" {
		senderID = data.SenderId
	}
	content = strings.TrimSpace(data.Text.Content)

	meta = map[string]string{
		bus.MetaMessageID:   data.MsgId,
		bus.MetaMessageKind: bus.KindText,
		bus.MetaPeerKind:    bus.PeerDirect,
		bus.MetaSenderName:  data.SenderNick,
	}
	if data.Msgtype != "" && data.Msgtype != "text" {
		meta[bus.MetaMessageKind] = data.Msgtype
	}

	chatID = senderID
	if data.ConversationType == "2" {
		chatID = data.ConversationId
		meta[bus.MetaPeerKind] = bus.PeerGroup
		meta[bus.MetaRoomTopic] = data.ConversationTitle
		if data.IsInAtList {
			meta[bus.MetaMentioned] = "true"
		}
	}
	meta[bus.MetaTargetAlias] = chatID
	return senderID, chatID, content, meta
}

func (c *DingTalkChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}

	v, ok := c.sessionWebhook.Load(msg.ChatID)
	if !ok {
		return fmt.Errorf("dingtalk chat %s has no session webhook: %w", msg.ChatID, ErrUnknownChat)
	}
	webhook := v.(string)

	if msg.Content != "" {
		if err := c.replier.SimpleReplyText(ctx, webhook, []byte(msg.Content)); err != nil {
			return fmt.Errorf("dingtalk reply: %w", err)
		}
	}
	if msg.Attachment != nil && msg.Attachment.URL != "" {
		md := fmt.Sprintf("![%s](%s)", msg.Attachment.Name, msg.Attachment.URL)
		if err := c.replier.SimpleReplyMarkdown(ctx, webhook, []byte(msg.Attachment.Name), []byte(md)); err != nil {
			return fmt.Errorf("dingtalk reply image: %w", err)
		}
	}
	return nil
}
