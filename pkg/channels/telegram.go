package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
)

type TelegramChannel struct {
	*BaseChannel
	config config.TelegramConfig
	bot    *tgbotapi.BotAPI
	cancel context.CancelFunc
}

func NewTelegramChannel(cfg config.TelegramConfig, messageBus *bus.MessageBus) (*TelegramChannel, error) {
	httpClient := &http.Client{Timeout: 90 * time.Second}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram proxy %q: %w", cfg.Proxy, err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", cfg, messageBus, cfg.AllowFrom),
		config:      cfg,
		bot:         bot,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoCF("telegram", "Starting Telegram bot (polling mode)", map[string]interface{}{
		"username": c.bot.Self.UserName,
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setRunning(true)

	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.WarnC("telegram", "Updates channel closed")
					c.setRunning(false)
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot")
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	c.bot.StopReceivingUpdates()
	return nil
}

func (c *TelegramChannel) handleMessage(message *tgbotapi.Message) {
	if message.From == nil || message.From.IsBot {
		return
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if message.From.UserName != "" {
		senderID = senderID + "|" + message.From.UserName
	}
	chatID := strconv.FormatInt(message.Chat.ID, 10)

	c.HandleMessage(senderID, chatID, message.Text, nil, telegramMetadata(message, c.bot.Self.UserName))
}

func telegramMetadata(message *tgbotapi.Message, selfName string) map[string]string {
	kind := bus.KindText
	if message.Text == "" {
		kind = "other"
	}

	senderName := ""
	if message.From != nil {
		senderName = strings.TrimSpace(message.From.FirstName + " " + message.From.LastName)
	}

	meta := map[string]string{
		bus.MetaMessageID:   strconv.Itoa(message.MessageID),
		bus.MetaMessageKind: kind,
		bus.MetaSenderName:  senderName,
		bus.MetaPeerKind:    bus.PeerDirect,
		bus.MetaTargetAlias: strconv.FormatInt(message.Chat.ID, 10),
	}

	if message.Chat.IsGroup() || message.Chat.IsSuperGroup() {
		meta[bus.MetaPeerKind] = bus.PeerGroup
		meta[bus.MetaRoomTopic] = message.Chat.Title
		meta[bus.MetaSelfName] = selfName
		if selfName != "" && strings.Contains(message.Text, "@"+selfName) {
			meta[bus.MetaMentioned] = "true"
		}
	}
	return meta
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat ID %q: %w", msg.ChatID, ErrUnknownChat)
	}

	if msg.Content != "" {
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, msg.Content)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}

	if att := msg.Attachment; att != nil {
		var file tgbotapi.RequestFileData
		switch {
		case len(att.Data) > 0:
			file = tgbotapi.FileBytes{Name: att.Name, Bytes: att.Data}
		case att.URL != "":
			file = tgbotapi.FileURL(att.URL)
		default:
			return nil
		}
		if _, err := c.bot.Send(tgbotapi.NewAnimation(chatID, file)); err != nil {
			return fmt.Errorf("telegram send animation: %w", err)
		}
	}
	return nil
}
