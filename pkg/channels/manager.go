// PicoChat - chat bot bridge built on PicoClaw
// Inspired by and based on nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/constants"
	"github.com/sipeed/picochat/pkg/logger"
)

type Manager struct {
	channels     map[string]Channel
	bus          *bus.MessageBus
	config       *config.Config
	dispatchTask *asyncTask
	mu           sync.RWMutex
}

type asyncTask struct {
	cancel context.CancelFunc
}

func NewManager(cfg *config.Config, messageBus *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      messageBus,
		config:   cfg,
	}

	if err := m.initChannels(); err != nil {
		return nil, err
	}

	return m, nil
}

type channelFactory struct {
	name    string
	enabled bool
	create  func() (Channel, error)
}

func (m *Manager) initChannels() error {
	logger.InfoC("channels", "Initializing channel manager")

	cc := m.config.Channels
	factories := []channelFactory{
		{"wechat", cc.WeChat.Enabled, func() (Channel, error) {
			return NewWeChatChannel(cc.WeChat, m.bus)
		}},
		{"onebot", cc.OneBot.Enabled && cc.OneBot.WSUrl != "", func() (Channel, error) {
			return NewOneBotChannel(cc.OneBot, m.bus)
		}},
		{"telegram", cc.Telegram.Enabled && cc.Telegram.Token != "", func() (Channel, error) {
			return NewTelegramChannel(cc.Telegram, m.bus)
		}},
		{"discord", cc.Discord.Enabled && cc.Discord.Token != "", func() (Channel, error) {
			return NewDiscordChannel(cc.Discord, m.bus)
		}},
		{"qq", cc.QQ.Enabled, func() (Channel, error) {
			return NewQQChannel(cc.QQ, m.bus)
		}},
		{"dingtalk", cc.DingTalk.Enabled && cc.DingTalk.ClientID != "", func() (Channel, error) {
			return NewDingTalkChannel(cc.DingTalk, m.bus)
		}},
		{"feishu", cc.Feishu.Enabled, func() (Channel, error) {
			return NewFeishuChannel(cc.Feishu, m.bus)
		}},
	}

	for _, f := range factories {
		if !f.enabled {
			continue
		}
		logger.DebugCF("channels", "Attempting to initialize channel", map[string]interface{}{
			"channel": f.name,
		})
		ch, err := f.create()
		if err != nil {
			logger.ErrorCF("channels", "Failed to initialize channel", map[string]interface{}{
				"channel": f.name,
				"error":   err.Error(),
			})
			continue
		}
		m.channels[f.name] = ch
		logger.InfoCF("channels", "Channel enabled successfully", map[string]interface{}{
			"channel": f.name,
		})
	}

	logger.InfoCF("channels", "Channel initialization completed", map[string]interface{}{
		"enabled_channels": len(m.channels),
	})

	return nil
}

func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.channels) == 0 {
		logger.WarnC("channels", "No channels enabled")
		return nil
	}

	logger.InfoC("channels", "Starting all channels")

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchTask = &asyncTask{cancel: cancel}

	go m.dispatchOutbound(dispatchCtx)

	for name, channel := range m.channels {
		logger.InfoCF("channels", "Starting channel", map[string]interface{}{
			"channel": name,
		})
		if err := channel.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	logger.InfoC("channels", "All channels started")
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.InfoC("channels", "Stopping all channels")

	if m.dispatchTask != nil {
		m.dispatchTask.cancel()
		m.dispatchTask = nil
	}

	for name, channel := range m.channels {
		logger.InfoCF("channels", "Stopping channel", map[string]interface{}{
			"channel": name,
		})
		if err := channel.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	logger.InfoC("channels", "All channels stopped")
	return nil
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	logger.InfoC("channels", "Outbound dispatcher started")

	for {
		select {
		case <-ctx.Done():
			logger.InfoC("channels", "Outbound dispatcher stopped")
			return
		default:
			msg, ok := m.bus.SubscribeOutbound(ctx)
			if !ok {
				continue
			}

			// Silently skip internal channels
			if constants.IsInternalChannel(msg.Channel) || msg.IsEmpty() {
				continue
			}

			m.mu.RLock()
			channel, exists := m.channels[msg.Channel]
			m.mu.RUnlock()

			if !exists {
				logger.WarnCF("channels", "Unknown channel for outbound message", map[string]interface{}{
					"channel": msg.Channel,
				})
				continue
			}

			// A slow transport call holds up only its own reply.
			go deliver(ctx, channel, msg)
		}
	}
}

// deliver is best effort: failures are logged and dropped.
func deliver(ctx context.Context, channel Channel, msg bus.OutboundMessage) {
	if err := channel.Send(ctx, msg); err != nil {
		logger.ErrorCF("channels", "Error sending message to channel", map[string]interface{}{
			"channel": msg.Channel,
			"chat_id": msg.ChatID,
			"error":   err.Error(),
		})
	}
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]interface{})
	for name, channel := range m.channels {
		status[name] = map[string]interface{}{
			"enabled": true,
			"running": channel.IsRunning(),
		}
	}
	return status
}

func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}

func (m *Manager) SendToChannel(ctx context.Context, channelName, chatID, content string) error {
	m.mu.RLock()
	channel, exists := m.channels[channelName]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("channel %s not found", channelName)
	}

	msg := bus.OutboundMessage{
		Channel: channelName,
		ChatID:  chatID,
		Content: content,
	}

	return channel.Send(ctx, msg)
}
