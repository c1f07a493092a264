package providers

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited is returned when the completion service answers 429.
var ErrRateLimited = errors.New("completion service rate limited")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation. ParentMessageID links it to
// the turn it answers, which is how history is rebuilt for a stateless API.
type ChatMessage struct {
	ID              string `json:"id"`
	Role            string `json:"role"`
	Text            string `json:"text"`
	ConversationID  string `json:"conversation_id"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
}

type SendOptions struct {
	ConversationID  string
	ParentMessageID string
	// Timeout overrides the client default when positive.
	Timeout time.Duration
}

type Completer interface {
	SendMessage(ctx context.Context, text string, opts SendOptions) (*ChatMessage, error)
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
