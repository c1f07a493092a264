package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tencent-connect/botgo"
	"github.com/tencent-connect/botgo/dto"
	"github.com/tencent-connect/botgo/event"
	"github.com/tencent-connect/botgo/openapi"
	"github.com/tencent-connect/botgo/token"
	"golang.org/x/oauth2"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
)

const (
	qqChatKindDirect = "direct"
	qqChatKindGroup  = "group"
)

// QQChannel talks to the official QQ bot platform. The platform only
// delivers group messages that @ the bot, so every group message counts as
// a mention.
type QQChannel struct {
	*BaseChannel
	config         config.QQConfig
	api            openapi.OpenAPI
	tokenSource    oauth2.TokenSource
	ctx            context.Context
	cancel         context.CancelFunc
	sessionManager botgo.SessionManager
	processedIDs   map[string]bool
	lastMsgIDs     map[string]string
	msgSeqByChat   map[string]uint32
	chatKindByID   map[string]string
	mu             sync.RWMutex
}

type qqMessageToCreate struct {
	Content string `json:"content,omitempty"`
	MsgType int    `json:"msg_type"`
	MsgID   string `json:"msg_id,omitempty"`
	MsgSeq  uint32 `json:"msg_seq,omitempty"`
}

func (m qqMessageToCreate) GetEventID() string {
	return ""
}

func (m qqMessageToCreate) GetSendType() dto.SendType {
	return dto.Text
}

func NewQQChannel(cfg config.QQConfig, messageBus *bus.MessageBus) (*QQChannel, error) {
	return &QQChannel{
		BaseChannel:  NewBaseChannel("qq", cfg, messageBus, cfg.AllowFrom),
		config:       cfg,
		processedIDs: make(map[string]bool),
		lastMsgIDs:   make(map[string]string),
		msgSeqByChat: make(map[string]uint32),
		chatKindByID: make(map[string]string),
	}, nil
}

func (c *QQChannel) Start(ctx context.Context) error {
	if c.config.AppID == "" || c.config.AppSecret == "" {
		return fmt.Errorf("QQ app_id and app_secret not configured")
	}

	logger.InfoC("qq", "Starting QQ bot (WebSocket mode)")

	c.tokenSource = token.NewQQBotTokenSource(&token.QQBotCredentials{
		AppID:     c.config.AppID,
		AppSecret: c.config.AppSecret,
	})
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := token.StartRefreshAccessToken(c.ctx, c.tokenSource); err != nil {
		return fmt.Errorf("failed to start token refresh: %w", err)
	}

	c.api = botgo.NewOpenAPI(c.config.AppID, c.tokenSource).WithTimeout(5 * time.Second)

	intent := event.RegisterHandlers(
		c.handleC2CMessage(),
		c.handleGroupATMessage(),
	)

	wsInfo, err := c.api.WS(c.ctx, nil, "")
	if err != nil {
		return fmt.Errorf("failed to get websocket info: %w", err)
	}

	c.sessionManager = botgo.NewSessionManager()
	go func() {
		if err := c.sessionManager.Start(wsInfo, c.tokenSource, &intent); err != nil {
			logger.ErrorCF("qq", "WebSocket session error", map[string]interface{}{
				"error": err.Error(),
			})
			c.setRunning(false)
		}
	}()

	c.setRunning(true)
	logger.InfoC("qq", "QQ bot started successfully")
	return nil
}

func (c *QQChannel) Stop(ctx context.Context) error {
	logger.InfoC("qq", "Stopping QQ bot")
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send replies passively to the last message of the chat when there is
// one. Stickers go out as their URL since rich media needs a prior upload.
func (c *QQChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}

	content := msg.Content
	if msg.Attachment != nil && msg.Attachment.URL != "" {
		content = strings.TrimSpace(content + "\n" + msg.Attachment.URL)
	}
	if content == "" {
		return nil
	}

	toCreate := c.buildMessage(msg.ChatID, content)

	var err error
	if c.resolveChatKind(msg.ChatID) == qqChatKindGroup {
		_, err = c.api.PostGroupMessage(ctx, msg.ChatID, toCreate)
	} else {
		_, err = c.api.PostC2CMessage(ctx, msg.ChatID, toCreate)
	}
	if err != nil {
		return fmt.Errorf("qq send: %w", err)
	}
	return nil
}

func (c *QQChannel) handleC2CMessage() event.C2CMessageEventHandler {
	return func(event *dto.WSPayload, data *dto.WSC2CMessageData) error {
		if c.isDuplicate(data.ID) {
			return nil
		}
		if data.Author == nil || data.Author.ID == "" {
			logger.WarnC("qq", "Received message with no sender ID")
			return nil
		}

		senderID := data.Author.ID
		c.recordInboundMessage(senderID, data.ID, qqChatKindDirect)
		c.HandleMessage(senderID, senderID, strings.TrimSpace(data.Content), nil, map[string]string{
			bus.MetaMessageID:   data.ID,
			bus.MetaMessageKind: bus.KindText,
			bus.MetaPeerKind:    bus.PeerDirect,
		})
		return nil
	}
}

func (c *QQChannel) handleGroupATMessage() event.GroupATMessageEventHandler {
	return func(event *dto.WSPayload, data *dto.WSGroupATMessageData) error {
		if c.isDuplicate(data.ID) {
			return nil
		}
		if data.Author == nil || data.Author.ID == "" {
			logger.WarnC("qq", "Received group message with no sender ID")
			return nil
		}

		c.recordInboundMessage(data.GroupID, data.ID, qqChatKindGroup)
		c.HandleMessage(data.Author.ID, data.GroupID, strings.TrimSpace(data.Content), nil, map[string]string{
			bus.MetaMessageID:   data.ID,
			bus.MetaMessageKind: bus.KindText,
			bus.MetaPeerKind:    bus.PeerGroup,
			bus.MetaRoomTopic:   data.GroupID,
			bus.MetaMentioned:   "true",
		})
		return nil
	}
}

func (c *QQChannel) isDuplicate(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.processedIDs[messageID] {
		return true
	}
	c.processedIDs[messageID] = true

	if len(c.processedIDs) > 10000 {
		count := 0
		for id := range c.processedIDs {
			if count >= 5000 {
				break
			}
			delete(c.processedIDs, id)
			count++
		}
	}
	return false
}

func (c *QQChannel) recordInboundMessage(chatID, messageID, chatKind string) {
	if chatID == "" || messageID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastMsgIDs[chatID] = messageID
	c.msgSeqByChat[chatID] = 0
	c.chatKindByID[chatID] = chatKind
}

func (c *QQChannel) buildMessage(chatID, content string) *qqMessageToCreate {
	msg := &qqMessageToCreate{
		Content: content,
		MsgType: int(dto.TextMsg),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if lastMsgID := c.lastMsgIDs[chatID]; lastMsgID != "" {
		c.msgSeqByChat[chatID]++
		msg.MsgID = lastMsgID
		msg.MsgSeq = c.msgSeqByChat[chatID]
	}
	return msg
}

func (c *QQChannel) resolveChatKind(chatID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if kind := c.chatKindByID[chatID]; kind != "" {
		return kind
	}
	return qqChatKindDirect
}
