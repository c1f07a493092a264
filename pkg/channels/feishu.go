package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/tidwall/gjson"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/utils"
)

type FeishuChannel struct {
	*BaseChannel
	config   config.FeishuConfig
	client   *lark.Client
	wsClient *larkws.Client
	cancel   context.CancelFunc
}

func NewFeishuChannel(cfg config.FeishuConfig, messageBus *bus.MessageBus) (*FeishuChannel, error) {
	return &FeishuChannel{
		BaseChannel: NewBaseChannel("feishu", cfg, messageBus, cfg.AllowFrom),
		config:      cfg,
		client:      lark.NewClient(cfg.AppID, cfg.AppSecret),
	}, nil
}

func (c *FeishuChannel) Start(ctx context.Context) error {
	if c.config.AppID == "" || c.config.AppSecret == "" {
		return fmt.Errorf("feishu app_id or app_secret is empty")
	}

	eventHandler := larkdispatcher.NewEventDispatcher(c.config.VerificationToken, c.config.EncryptKey).
		OnP2MessageReceiveV1(c.handleMessageReceive)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wsClient = larkws.NewClient(c.config.AppID, c.config.AppSecret, larkws.WithEventHandler(eventHandler))

	c.setRunning(true)
	logger.InfoC("feishu", "Feishu channel started (websocket mode)")

	go func() {
		if err := c.wsClient.Start(runCtx); err != nil {
			logger.ErrorCF("feishu", "Feishu websocket stopped with error", map[string]interface{}{
				"error": err.Error(),
			})
			c.setRunning(false)
		}
	}()
	return nil
}

func (c *FeishuChannel) Stop(ctx context.Context) error {
	logger.InfoC("feishu", "Stopping Feishu channel")
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *FeishuChannel) handleMessageReceive(_ context.Context, event *larkim.P2MessageReceiveV1) error {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	message := event.Event.Message

	senderID := "unknown"
	if event.Event.Sender != nil && event.Event.Sender.SenderId != nil {
		senderID = stringValue(event.Event.Sender.SenderId.OpenId)
	}

	chatID := stringValue(message.ChatId)
	if chatID == "" {
		return nil
	}

	mentions := make([]feishuMention, 0, len(message.Mentions))
	for _, m := range message.Mentions {
		if m == nil {
			continue
		}
		mentions = append(mentions, feishuMention{Key: stringValue(m.Key), Name: stringValue(m.Name)})
	}

	content, meta := feishuMessage(
		stringValue(message.MessageType),
		stringValue(message.ChatType),
		stringValue(message.Content),
		mentions,
	)
	meta[bus.MetaMessageID] = stringValue(message.MessageId)
	if meta[bus.MetaPeerKind] == bus.PeerDirect {
		meta[bus.MetaTargetAlias] = senderID
	}

	c.HandleMessage(senderID, chatID, content, nil, meta)
	return nil
}

type feishuMention struct {
	Key  string
	Name string
}

// feishuMessage extracts text from a message body. Mention placeholders
// such as "@_user_1" are replaced by "@<name>"; any mention in a group is
// treated as addressing the bot, since the platform only pushes group
// messages that @ the app.
func feishuMessage(msgType, chatType, rawContent string, mentions []feishuMention) (string, map[string]string) {
	meta := map[string]string{
		bus.MetaMessageKind: bus.KindText,
		bus.MetaPeerKind:    bus.PeerDirect,
	}

	content := rawContent
	if msgType == "text" {
		content = gjson.Get(rawContent, "text").String()
	} else {
		meta[bus.MetaMessageKind] = msgType
	}

	for _, m := range mentions {
		if m.Key != "" {
			content = strings.ReplaceAll(content, m.Key, "@"+m.Name)
		}
	}

	if chatType == "group" {
		meta[bus.MetaPeerKind] = bus.PeerGroup
		if len(mentions) > 0 {
			meta[bus.MetaMentioned] = "true"
			meta[bus.MetaSelfName] = mentions[0].Name
		}
	}
	return strings.TrimSpace(content), meta
}

func (c *FeishuChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}
	if msg.ChatID == "" {
		return fmt.Errorf("feishu: empty chat ID: %w", ErrUnknownChat)
	}

	if msg.Content != "" {
		payload, err := json.Marshal(map[string]string{"text": msg.Content})
		if err != nil {
			return fmt.Errorf("failed to marshal feishu content: %w", err)
		}
		if err := c.create(ctx, msg.ChatID, larkim.MsgTypeText, string(payload)); err != nil {
			return err
		}
	}

	if att := msg.Attachment; att != nil {
		data := att.Data
		if len(data) == 0 && att.URL != "" {
			var err error
			if data, err = utils.DownloadFile(ctx, att.URL, utils.DownloadOptions{}); err != nil {
				return err
			}
		}
		if len(data) == 0 {
			return nil
		}
		imageKey, err := c.uploadImage(ctx, data)
		if err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]string{"image_key": imageKey})
		return c.create(ctx, msg.ChatID, larkim.MsgTypeImage, string(payload))
	}
	return nil
}

func (c *FeishuChannel) create(ctx context.Context, chatID, msgType, content string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.client.Im.V1.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send feishu message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("feishu api error: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

func (c *FeishuChannel) uploadImage(ctx context.Context, data []byte) (string, error) {
	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType(larkim.ImageTypeMessage).
			Image(bytes.NewReader(data)).
			Build()).
		Build()

	resp, err := c.client.Im.V1.Image.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("feishu image upload: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("feishu image upload: code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.ImageKey == nil {
		return "", fmt.Errorf("feishu image upload: missing image_key")
	}
	return *resp.Data.ImageKey, nil
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
