package agent

import (
	"strings"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/logger"
)

// Route is an inbound message reduced to what the dispatcher needs.
// Replies always go to Channel/ChatID, which is the room for group
// messages and the contact otherwise.
type Route struct {
	Channel     string
	ChatID      string
	SenderID    string
	SenderName  string
	RoomTopic   string
	TargetAlias string
	Content     string
	IsGroup     bool
	// Addressed is set when the bot was mentioned in a room with a
	// non-empty request that is not an exempt command.
	Addressed bool
}

type Router struct {
	mentionExemptPrefix string
}

func NewRouter(mentionExemptPrefix string) *Router {
	return &Router{mentionExemptPrefix: mentionExemptPrefix}
}

// Route returns false for messages that must be dropped before dispatch.
func (r *Router) Route(msg bus.InboundMessage) (Route, bool) {
	if !msg.IsText() {
		return Route{}, false
	}

	route := Route{
		Channel:     msg.Channel,
		ChatID:      msg.ChatID,
		SenderID:    msg.SenderID,
		SenderName:  msg.Meta(bus.MetaSenderName),
		RoomTopic:   msg.Meta(bus.MetaRoomTopic),
		TargetAlias: msg.Meta(bus.MetaTargetAlias),
		Content:     strings.TrimSpace(msg.Content),
		IsGroup:     msg.IsGroup(),
	}

	if !route.IsGroup || msg.Meta(bus.MetaMentioned) != "true" {
		return route, true
	}

	stripped := StripMention(msg.Content, msg.Meta(bus.MetaSelfName))
	if stripped == "" {
		logger.InfoCF("router", "Mentioned without content", map[string]interface{}{
			"room":    route.RoomTopic,
			"chat_id": route.ChatID,
			"sender":  route.SenderName,
		})
		return route, true
	}

	route.Content = stripped
	route.Addressed = r.mentionExemptPrefix == "" || !strings.HasPrefix(stripped, r.mentionExemptPrefix)
	return route, true
}

// StripMention removes the first "@name" token and trims the result.
func StripMention(content, name string) string {
	if name != "" {
		content = strings.Replace(content, "@"+name, "", 1)
	}
	return strings.TrimSpace(content)
}
