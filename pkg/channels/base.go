package channels

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/sipeed/picochat/pkg/bus"
)

var (
	ErrNotRunning  = errors.New("channel not running")
	ErrUnknownChat = errors.New("unknown chat")
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

type BaseChannel struct {
	config    interface{}
	bus       *bus.MessageBus
	running   atomic.Bool
	name      string
	allowList []string
}

func NewBaseChannel(name string, config interface{}, bus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		config:    config,
		bus:       bus,
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

// IsAllowed reports whether senderID may talk to the bot. An empty allow
// list admits everyone. Compound IDs such as "123|alice" match on either part.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if i := strings.Index(senderID, "|"); i > 0 {
		idPart = senderID[:i]
		userPart = senderID[i+1:]
	}

	for _, allowed := range c.allowList {
		allowed = strings.TrimPrefix(strings.TrimSpace(allowed), "@")
		if allowed == "" {
			continue
		}
		if senderID == allowed || idPart == allowed || (userPart != "" && userPart == allowed) {
			return true
		}
	}
	return false
}

// HandleMessage publishes one inbound message. The target alias defaults to
// the chat ID when the transport has no owner-assigned alias.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		return
	}

	if metadata == nil {
		metadata = make(map[string]string)
	}
	if metadata[bus.MetaTargetAlias] == "" {
		metadata[bus.MetaTargetAlias] = chatID
	}
	if metadata[bus.MetaPeerKind] == "" {
		metadata[bus.MetaPeerKind] = bus.PeerDirect
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:    c.name,
		SenderID:   senderID,
		ChatID:     chatID,
		Content:    content,
		Media:      media,
		SessionKey: c.name + ":" + chatID,
		Metadata:   metadata,
	})
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}
