package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/sipeed/picochat/pkg/utils"
)

type Announcer interface {
	SendToChannel(ctx context.Context, channel, chatID, content string) error
}

type Prompter interface {
	Complete(ctx context.Context, senderID, prompt string) (string, error)
}

type Sweeper interface {
	Sweep(maxIdle time.Duration) int
}

// NewJobHandler returns the handler that runs announce, prompt and
// sweep_sessions jobs. Each run is bounded by timeout.
func NewJobHandler(announcer Announcer, prompter Prompter, sweeper Sweeper, timeout time.Duration) JobHandler {
	return func(job *CronJob) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		p := job.Payload
		switch p.Kind {
		case PayloadAnnounce:
			if err := announcer.SendToChannel(ctx, p.Channel, p.To, p.Message); err != nil {
				return "", fmt.Errorf("announce to %s:%s: %w", p.Channel, p.To, err)
			}
			return "sent", nil

		case PayloadPrompt:
			// The reply may be a fallback text even on error; deliver it anyway.
			reply, err := prompter.Complete(ctx, "cron:"+job.ID, p.Message)
			if reply != "" {
				if sendErr := announcer.SendToChannel(ctx, p.Channel, p.To, reply); sendErr != nil {
					return "", fmt.Errorf("deliver prompt reply to %s:%s: %w", p.Channel, p.To, sendErr)
				}
			}
			if err != nil {
				return utils.Preview(reply, 80), fmt.Errorf("prompt: %w", err)
			}
			return utils.Preview(reply, 80), nil

		case PayloadSweepSessions:
			removed := sweeper.Sweep(time.Duration(p.IdleMinutes) * time.Minute)
			return fmt.Sprintf("removed %d", removed), nil
		}
		return "", fmt.Errorf("unknown payload kind %q", p.Kind)
	}
}
