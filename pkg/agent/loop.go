// PicoChat - chat bot bridge built on PicoClaw
// Inspired by and based on nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/providers"
	"github.com/sipeed/picochat/pkg/session"
	"github.com/sipeed/picochat/pkg/tools"
	"github.com/sipeed/picochat/pkg/utils"
)

const defaultMaxConcurrent = 16

type AgentLoop struct {
	bus        *bus.MessageBus
	router     *Router
	dispatcher *Dispatcher
	tools      *tools.ToolRegistry
	sessions   *session.SessionManager
	sem        *semaphore.Weighted
	inflight   sync.WaitGroup
	running    atomic.Bool
	handled    atomic.Int64
}

func NewAgentLoop(cfg *config.Config, msgBus *bus.MessageBus, provider providers.Completer, sessions *session.SessionManager) *AgentLoop {
	toolsRegistry := tools.NewToolRegistry()
	toolsRegistry.Register(tools.NewChatTool(provider, sessions, tools.ChatToolOptions{
		FallbackReply:  cfg.Bot.FallbackReply,
		RateLimitReply: cfg.Bot.RateLimitReply,
		Timeout:        cfg.CompletionTimeout(),
	}))
	toolsRegistry.Register(tools.NewStickerTool(tools.StickerToolOptions{
		Endpoint:  cfg.Sticker.Endpoint,
		Timeout:   time.Duration(cfg.Sticker.TimeoutSeconds) * time.Second,
		UserAgent: cfg.Sticker.UserAgent,
	}))

	commands := make(map[string]string)
	for _, c := range cfg.Bot.ChatCommands {
		commands[c] = tools.ChatToolName
	}
	for _, c := range cfg.Bot.StickerCommands {
		commands[c] = tools.StickerToolName
	}

	maxConcurrent := cfg.Bot.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	return &AgentLoop{
		bus:    msgBus,
		router: NewRouter(cfg.Bot.MentionExemptPrefix),
		dispatcher: NewDispatcher(toolsRegistry, DispatcherOptions{
			Admin:       cfg.Bot.Admin,
			PingKeyword: cfg.Bot.PingKeyword,
			PingReply:   cfg.Bot.PingReply,
			Commands:    commands,
		}),
		tools:    toolsRegistry,
		sessions: sessions,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Run consumes inbound messages and handles each one in its own goroutine
// until ctx is done. Ordering across senders is not preserved.
func (al *AgentLoop) Run(ctx context.Context) error {
	al.running.Store(true)
	defer al.running.Store(false)

	for {
		msg, ok := al.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}

		if err := al.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		al.inflight.Add(1)
		go func(msg bus.InboundMessage) {
			defer al.inflight.Done()
			defer al.sem.Release(1)
			al.handle(ctx, msg)
		}(msg)
	}
}

// Stop waits for in-flight messages. Cancel the Run context first.
func (al *AgentLoop) Stop() {
	al.inflight.Wait()
}

func (al *AgentLoop) IsRunning() bool {
	return al.running.Load()
}

func (al *AgentLoop) handle(ctx context.Context, msg bus.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			Outcome{
				Kind:     OutcomeFailed,
				Channel:  msg.Channel,
				ChatID:   msg.ChatID,
				SenderID: msg.SenderID,
				Err:      fmt.Errorf("panic: %v", r),
			}.Log()
		}
	}()

	replies, outcome := al.process(ctx, msg)
	for _, reply := range replies {
		if reply.IsEmpty() {
			continue
		}
		al.bus.PublishOutbound(reply)
	}
	al.handled.Add(1)
	outcome.Log()
}

func (al *AgentLoop) process(ctx context.Context, msg bus.InboundMessage) ([]bus.OutboundMessage, Outcome) {
	route, ok := al.router.Route(msg)
	if !ok {
		return nil, Outcome{
			Kind:     OutcomeIgnored,
			Channel:  msg.Channel,
			ChatID:   msg.ChatID,
			SenderID: msg.SenderID,
		}
	}

	fields := map[string]interface{}{
		"channel":   route.Channel,
		"chat_id":   route.ChatID,
		"sender_id": route.SenderID,
		"contact":   route.SenderName,
		"content":   utils.Preview(route.Content, 80),
	}
	if route.IsGroup {
		fields["room"] = route.RoomTopic
		fields["addressed"] = route.Addressed
	}
	logger.InfoCF("agent", "Message received", fields)

	return al.dispatcher.Dispatch(ctx, route)
}

// ProcessDirect routes content as a direct message from senderID and
// returns the replies instead of publishing them.
func (al *AgentLoop) ProcessDirect(ctx context.Context, content, senderID string) ([]bus.OutboundMessage, error) {
	return al.ProcessDirectWithChannel(ctx, content, senderID, "console", senderID)
}

func (al *AgentLoop) ProcessDirectWithChannel(ctx context.Context, content, senderID, channel, chatID string) ([]bus.OutboundMessage, error) {
	msg := bus.InboundMessage{
		Channel:    channel,
		SenderID:   senderID,
		ChatID:     chatID,
		Content:    content,
		SessionKey: channel + ":" + chatID,
		Metadata: map[string]string{
			bus.MetaPeerKind:    bus.PeerDirect,
			bus.MetaMessageKind: bus.KindText,
			bus.MetaTargetAlias: chatID,
		},
	}

	replies, outcome := al.process(ctx, msg)
	outcome.Log()
	if outcome.Kind == OutcomeFailed {
		return replies, outcome.Err
	}
	return replies, nil
}

// Complete runs the chat tool for senderID outside of any chat, for
// scheduled prompts. The reply may be a fallback text.
func (al *AgentLoop) Complete(ctx context.Context, senderID, prompt string) (string, error) {
	result, err := al.tools.Execute(ctx, tools.ChatToolName, tools.Call{
		Channel:  "system",
		SenderID: senderID,
		Input:    prompt,
	})
	if err != nil {
		return "", err
	}
	if result.Err != nil {
		return result.Text, result.Err
	}
	return result.Text, nil
}

func (al *AgentLoop) GetStartupInfo() map[string]interface{} {
	commands := make(map[string]string, len(al.dispatcher.opts.Commands))
	for token, tool := range al.dispatcher.opts.Commands {
		commands[token] = tool
	}
	return map[string]interface{}{
		"tools": map[string]interface{}{
			"count": al.tools.Count(),
			"names": al.tools.List(),
		},
		"commands":      commands,
		"admin_enabled": al.dispatcher.opts.Admin != "",
		"conversations": al.sessions.Count(),
		"handled":       al.handled.Load(),
	}
}
