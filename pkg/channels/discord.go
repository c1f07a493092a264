package channels

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/utils"
)

type DiscordChannel struct {
	*BaseChannel
	config  config.DiscordConfig
	session *discordgo.Session
}

func NewDiscordChannel(cfg config.DiscordConfig, messageBus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", cfg, messageBus, cfg.AllowFrom),
		config:      cfg,
		session:     session,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)
	if c.session.State != nil && c.session.State.User != nil {
		logger.InfoCF("discord", "Discord bot connected", map[string]interface{}{
			"username": c.session.State.User.Username,
		})
	}
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)
	return c.session.Close()
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	var self *discordgo.User
	if s.State != nil {
		self = s.State.User
	}
	content, meta := discordMessage(m.Message, self)

	senderID := m.Author.ID + "|" + m.Author.Username
	c.HandleMessage(senderID, m.ChannelID, content, nil, meta)
}

// discordMessage rewrites the "<@id>" mention of the bot into "@name" so
// the router can strip it like any other transport.
func discordMessage(m *discordgo.Message, self *discordgo.User) (string, map[string]string) {
	content := m.Content
	meta := map[string]string{
		bus.MetaMessageID:   m.ID,
		bus.MetaMessageKind: bus.KindText,
		bus.MetaPeerKind:    bus.PeerDirect,
		bus.MetaTargetAlias: m.ChannelID,
	}
	if m.Author != nil {
		meta[bus.MetaSenderName] = m.Author.Username
	}
	if strings.TrimSpace(content) == "" && len(m.Attachments) > 0 {
		meta[bus.MetaMessageKind] = "other"
	}

	if m.GuildID == "" {
		return content, meta
	}

	meta[bus.MetaPeerKind] = bus.PeerGroup
	meta[bus.MetaRoomTopic] = m.ChannelID
	if self == nil {
		return content, meta
	}

	meta[bus.MetaSelfName] = self.Username
	for _, u := range m.Mentions {
		if u != nil && u.ID == self.ID {
			meta[bus.MetaMentioned] = "true"
			content = strings.NewReplacer(
				"<@"+self.ID+">", "@"+self.Username,
				"<@!"+self.ID+">", "@"+self.Username,
			).Replace(content)
			break
		}
	}
	return content, meta
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}
	if msg.ChatID == "" {
		return fmt.Errorf("discord: empty channel ID: %w", ErrUnknownChat)
	}

	if msg.Content != "" {
		if _, err := c.session.ChannelMessageSend(msg.ChatID, msg.Content, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send: %w", err)
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
		if _, err := c.session.ChannelFileSend(msg.ChatID, att.Name, bytes.NewReader(data), discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send file: %w", err)
		}
	}
	return nil
}
