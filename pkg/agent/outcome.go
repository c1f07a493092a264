package agent

import (
	"time"

	"github.com/sipeed/picochat/pkg/logger"
)

type OutcomeKind string

const (
	OutcomeIgnored       OutcomeKind = "ignored"
	OutcomeReplied       OutcomeKind = "replied"
	OutcomeFallback      OutcomeKind = "fallback"
	OutcomeNothingToSend OutcomeKind = "nothing_to_send"
	OutcomeFailed        OutcomeKind = "failed"
)

// Outcome describes what happened to one message. It is only logged.
type Outcome struct {
	Kind     OutcomeKind
	Command  string
	Channel  string
	ChatID   string
	SenderID string
	Duration time.Duration
	Err      error
}

func (o Outcome) fields() map[string]interface{} {
	f := map[string]interface{}{
		"outcome":     string(o.Kind),
		"channel":     o.Channel,
		"chat_id":     o.ChatID,
		"sender_id":   o.SenderID,
		"duration_ms": o.Duration.Milliseconds(),
	}
	if o.Command != "" {
		f["command"] = o.Command
	}
	if o.Err != nil {
		f["error"] = o.Err.Error()
	}
	return f
}

func (o Outcome) Log() {
	switch o.Kind {
	case OutcomeIgnored:
		logger.DebugCF("agent", "Message ignored", o.fields())
	case OutcomeFailed:
		logger.ErrorCF("agent", "Message handling failed", o.fields())
	case OutcomeFallback, OutcomeNothingToSend:
		logger.WarnCF("agent", "Message handled with degraded reply", o.fields())
	default:
		logger.InfoCF("agent", "Message handled", o.fields())
	}
}
