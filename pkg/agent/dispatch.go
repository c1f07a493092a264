package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/tools"
)

type Command int

const (
	CommandIgnore Command = iota
	CommandPing
	CommandTool
)

// Decision is the single action chosen for a routed message.
type Decision struct {
	Command Command
	Tool    string
	Prefix  string
	Request string
	IsAdmin bool
}

type DispatcherOptions struct {
	Admin       string
	PingKeyword string
	PingReply   string
	// Commands maps a leading token such as "/c" to a tool name.
	Commands map[string]string
}

type Dispatcher struct {
	tools *tools.ToolRegistry
	opts  DispatcherOptions
}

func NewDispatcher(registry *tools.ToolRegistry, opts DispatcherOptions) *Dispatcher {
	if opts.Commands == nil {
		opts.Commands = map[string]string{}
	}
	return &Dispatcher{tools: registry, opts: opts}
}

func (d *Dispatcher) isAdmin(route Route) bool {
	return d.opts.Admin != "" && route.TargetAlias == d.opts.Admin
}

// Decide picks at most one action:
//  1. admin ping keyword
//  2. a known command token (removed only from the start of the text)
//  3. a mention addressed to the bot
//  4. admin free text
// Anything else is ignored.
func (d *Dispatcher) Decide(route Route) Decision {
	content := strings.TrimSpace(route.Content)
	admin := d.isAdmin(route)

	if content == "" {
		return Decision{Command: CommandIgnore, IsAdmin: admin}
	}
	if admin && d.opts.PingKeyword != "" && content == d.opts.PingKeyword {
		return Decision{Command: CommandPing, IsAdmin: true}
	}

	prefix := content
	if i := strings.Index(content, " "); i >= 0 {
		prefix = content[:i]
	}

	if tool, ok := d.opts.Commands[prefix]; ok {
		request := strings.TrimSpace(strings.TrimPrefix(content, prefix))
		if request == "" && tool == tools.ChatToolName {
			return Decision{Command: CommandIgnore, Prefix: prefix, IsAdmin: admin}
		}
		return Decision{Command: CommandTool, Tool: tool, Prefix: prefix, Request: request, IsAdmin: admin}
	}

	if route.Addressed || admin {
		return Decision{Command: CommandTool, Tool: tools.ChatToolName, Request: content, IsAdmin: admin}
	}
	return Decision{Command: CommandIgnore, IsAdmin: admin}
}

// Dispatch executes the decision and returns the replies to deliver. It
// never fails; what happened is described by the Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, route Route) ([]bus.OutboundMessage, Outcome) {
	start := time.Now()
	outcome := Outcome{
		Kind:     OutcomeIgnored,
		Channel:  route.Channel,
		ChatID:   route.ChatID,
		SenderID: route.SenderID,
	}
	finish := func(o Outcome) Outcome {
		o.Duration = time.Since(start)
		return o
	}

	decision := d.Decide(route)
	switch decision.Command {
	case CommandIgnore:
		return nil, finish(outcome)

	case CommandPing:
		outcome.Kind = OutcomeReplied
		outcome.Command = "ping"
		return []bus.OutboundMessage{d.reply(route, d.opts.PingReply, nil)}, finish(outcome)
	}

	outcome.Command = decision.Tool
	result, err := d.tools.Execute(ctx, decision.Tool, tools.Call{
		Channel:  route.Channel,
		ChatID:   route.ChatID,
		SenderID: route.SenderID,
		Input:    decision.Request,
	})
	if err != nil {
		outcome.Kind = OutcomeFailed
		if errors.Is(err, tools.ErrNoResult) {
			outcome.Kind = OutcomeNothingToSend
		}
		outcome.Err = err
		return nil, finish(outcome)
	}
	if result == nil || (result.Text == "" && result.Attachment == nil) {
		outcome.Kind = OutcomeNothingToSend
		return nil, finish(outcome)
	}

	outcome.Kind = OutcomeReplied
	if result.Err != nil {
		outcome.Kind = OutcomeFallback
		outcome.Err = result.Err
	}
	return []bus.OutboundMessage{d.reply(route, result.Text, result.Attachment)}, finish(outcome)
}

func (d *Dispatcher) reply(route Route, content string, attachment *bus.Attachment) bus.OutboundMessage {
	return bus.OutboundMessage{
		Channel:    route.Channel,
		ChatID:     route.ChatID,
		Content:    content,
		Attachment: attachment,
	}
}
