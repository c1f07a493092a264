package tools

import (
	"context"
	"time"

	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/providers"
	"github.com/sipeed/picochat/pkg/session"
	"github.com/sipeed/picochat/pkg/utils"
)

const ChatToolName = "chat"

type ChatToolOptions struct {
	FallbackReply  string
	RateLimitReply string
	Timeout        time.Duration
}

// ChatTool answers with the completion service and keeps one continuation
// handle per sender. It never returns an error: failures become one of the
// two fallback replies and leave the stored handle untouched.
type ChatTool struct {
	completer providers.Completer
	sessions  *session.SessionManager
	opts      ChatToolOptions
}

func NewChatTool(completer providers.Completer, sessions *session.SessionManager, opts ChatToolOptions) *ChatTool {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &ChatTool{
		completer: completer,
		sessions:  sessions,
		opts:      opts,
	}
}

func (t *ChatTool) Name() string {
	return ChatToolName
}

func (t *ChatTool) Description() string {
	return "Ask the AI assistant; follow-ups from the same sender continue the conversation"
}

func (t *ChatTool) Execute(ctx context.Context, call Call) (*Result, error) {
	key := call.SenderID
	var opts providers.SendOptions
	if state, ok := t.sessions.Lookup(key); ok {
		opts.ConversationID = state.ConversationID
		opts.ParentMessageID = state.ParentMessageID
	}
	opts.Timeout = t.opts.Timeout

	logger.InfoCF("tool", "Completion request", map[string]interface{}{
		"sender_id":    key,
		"request":      utils.Preview(call.Input, 80),
		"continuation": opts.ParentMessageID != "",
	})

	reply, err := t.completer.SendMessage(ctx, call.Input, opts)
	if err != nil {
		text := t.opts.FallbackReply
		if providers.IsRateLimited(err) {
			text = t.opts.RateLimitReply
		}
		logger.ErrorCF("tool", "Completion failed", map[string]interface{}{
			"sender_id":    key,
			"rate_limited": providers.IsRateLimited(err),
			"error":        err.Error(),
		})
		return &Result{Text: text, Err: err}, nil
	}

	t.sessions.Record(key, reply.ConversationID, reply.ID)

	logger.InfoCF("tool", "Completion response", map[string]interface{}{
		"sender_id": key,
		"response":  utils.Preview(reply.Text, 80),
	})
	return &Result{Text: reply.Text}, nil
}
