package bus

// Metadata keys set by channels on InboundMessage.Metadata.
const (
	MetaMessageKind = "message_kind"
	MetaPeerKind    = "peer_kind"
	MetaMentioned   = "mentioned"
	MetaSelfName    = "self_name"
	MetaTargetAlias = "target_alias"
	MetaRoomTopic   = "room_topic"
	MetaSenderName  = "sender_name"
	MetaMessageID   = "message_id"
)

const (
	KindText = "text"

	PeerDirect = "direct"
	PeerGroup  = "group"
)

type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	Media      []string          `json:"media,omitempty"`
	SessionKey string            `json:"session_key"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value, or "" when absent.
func (m InboundMessage) Meta(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// IsGroup reports whether the message came from a room.
func (m InboundMessage) IsGroup() bool {
	return m.Meta(MetaPeerKind) == PeerGroup
}

// IsText reports whether the message is plain text. Channels that do not
// set a kind only publish text.
func (m InboundMessage) IsText() bool {
	kind := m.Meta(MetaMessageKind)
	return kind == "" || kind == KindText
}

// Attachment is a file payload. URL is fetched lazily by the channel when
// Data is empty.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Data []byte `json:"-"`
}

type OutboundMessage struct {
	Channel    string      `json:"channel"`
	ChatID     string      `json:"chat_id"`
	Content    string      `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// IsEmpty reports whether there is nothing to deliver.
func (m OutboundMessage) IsEmpty() bool {
	return m.Content == "" && m.Attachment == nil
}
