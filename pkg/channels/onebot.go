package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/utils"
)

type OneBotChannel struct {
	*BaseChannel
	config      config.OneBotConfig
	conn        *websocket.Conn
	ctx         context.Context
	cancel      context.CancelFunc
	dedup       map[string]struct{}
	dedupRing   []string
	dedupIdx    int
	mu          sync.Mutex
	writeMu     sync.Mutex
	apiWaitMu   sync.Mutex
	echoCounter int64
	apiWaiters  map[string]chan oneBotAPIResponse
	// approve sends set_group_add_request; replaced in tests.
	approve func(flag, subType string) error
}

type oneBotRawEvent struct {
	PostType      string          `json:"post_type"`
	MessageType   string          `json:"message_type"`
	RequestType   string          `json:"request_type"`
	NoticeType    string          `json:"notice_type"`
	SubType       string          `json:"sub_type"`
	MessageID     json.RawMessage `json:"message_id"`
	UserID        json.RawMessage `json:"user_id"`
	GroupID       json.RawMessage `json:"group_id"`
	RawMessage    string          `json:"raw_message"`
	Message       json.RawMessage `json:"message"`
	Sender        json.RawMessage `json:"sender"`
	SelfID        json.RawMessage `json:"self_id"`
	Flag          string          `json:"flag"`
	Comment       string          `json:"comment"`
	MetaEventType string          `json:"meta_event_type"`
	Echo          string          `json:"echo"`
	RetCode       json.RawMessage `json:"retcode"`
	Status        BotStatus       `json:"status"`
}

// BotStatus is either the "status" string of an API response or the
// status object of a heartbeat.
type BotStatus struct {
	Online bool `json:"online"`
	Good   bool `json:"good"`
	Text   string
}

func (s *BotStatus) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*s = BotStatus{}
		return nil
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*s = BotStatus{Text: strings.TrimSpace(text)}
		return nil
	}

	var obj struct {
		Online bool `json:"online"`
		Good   bool `json:"good"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = BotStatus{Online: obj.Online, Good: obj.Good}
	return nil
}

type oneBotSender struct {
	UserID   json.RawMessage `json:"user_id"`
	Nickname string          `json:"nickname"`
	Card     string          `json:"card"`
}

type oneBotEvent struct {
	MessageType    string
	MessageID      string
	UserID         int64
	GroupID        int64
	Content        string
	IsBotMentioned bool
	HasNonText     bool
	Sender         oneBotSender
	SelfID         int64
}

type oneBotAPIRequest struct {
	Action string      `json:"action"`
	Params interface{} `json:"params"`
	Echo   string      `json:"echo,omitempty"`
}

type oneBotSegment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

type oneBotSendPrivateMsgParams struct {
	UserID  int64           `json:"user_id"`
	Message []oneBotSegment `json:"message"`
}

type oneBotSendGroupMsgParams struct {
	GroupID int64           `json:"group_id"`
	Message []oneBotSegment `json:"message"`
}

type oneBotSetGroupAddRequestParams struct {
	Flag    string `json:"flag"`
	SubType string `json:"sub_type"`
	Approve bool   `json:"approve"`
}

type oneBotAPIResponse struct {
	Status  string          `json:"status"`
	RetCode json.RawMessage `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
	Echo    string          `json:"echo"`
}

func NewOneBotChannel(cfg config.OneBotConfig, messageBus *bus.MessageBus) (*OneBotChannel, error) {
	base := NewBaseChannel("onebot", cfg, messageBus, cfg.AllowFrom)

	const dedupSize = 1024

	c := &OneBotChannel{
		BaseChannel: base,
		config:      cfg,
		dedup:       make(map[string]struct{}, dedupSize),
		dedupRing:   make([]string, dedupSize),
		apiWaiters:  make(map[string]chan oneBotAPIResponse),
	}
	c.approve = c.approveGroupInvite
	return c, nil
}

func (c *OneBotChannel) Start(ctx context.Context) error {
	if c.config.WSUrl == "" {
		return fmt.Errorf("OneBot ws_url not configured")
	}

	logger.InfoCF("onebot", "Starting OneBot channel", map[string]interface{}{
		"ws_url": c.config.WSUrl,
	})

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		logger.WarnCF("onebot", "Initial connection failed, will retry in background", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		go c.listen()
	}

	if c.config.ReconnectInterval > 0 {
		go c.reconnectLoop()
	} else if c.currentConn() == nil {
		return fmt.Errorf("failed to connect to OneBot and reconnect is disabled")
	}

	c.setRunning(true)
	logger.InfoC("onebot", "OneBot channel started successfully")
	return nil
}

func (c *OneBotChannel) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := make(map[string][]string)
	if c.config.AccessToken != "" {
		header["Authorization"] = []string{"Bearer " + c.config.AccessToken}
	}

	conn, _, err := dialer.Dial(c.config.WSUrl, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	logger.InfoC("onebot", "WebSocket connected")
	return nil
}

func (c *OneBotChannel) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *OneBotChannel) reconnectLoop() {
	interval := time.Duration(c.config.ReconnectInterval) * time.Second
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(interval):
			if c.currentConn() != nil {
				continue
			}
			logger.InfoC("onebot", "Attempting to reconnect...")
			if err := c.connect(); err != nil {
				logger.ErrorCF("onebot", "Reconnect failed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			go c.listen()
		}
	}
}

func (c *OneBotChannel) Stop(ctx context.Context) error {
	logger.InfoC("onebot", "Stopping OneBot channel")
	c.setRunning(false)

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	return nil
}

func (c *OneBotChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}

	conn := c.currentConn()
	if conn == nil {
		return fmt.Errorf("OneBot WebSocket not connected")
	}

	action, params, err := buildOneBotSendRequest(msg)
	if err != nil {
		return err
	}

	data, err := json.Marshal(oneBotAPIRequest{
		Action: action,
		Params: params,
		Echo:   c.nextEcho("send"),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal OneBot request: %w", err)
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("onebot send: %w", err)
	}
	return nil
}

func (c *OneBotChannel) nextEcho(prefix string) string {
	c.writeMu.Lock()
	c.echoCounter++
	echo := fmt.Sprintf("%s_%d", prefix, c.echoCounter)
	c.writeMu.Unlock()
	return echo
}

// buildOneBotMessage renders an outbound message as segments. Attachments
// are sent as image segments pointing at their URL so the bot
// implementation fetches them itself.
func buildOneBotMessage(msg bus.OutboundMessage) []oneBotSegment {
	var segments []oneBotSegment
	if msg.Content != "" {
		segments = append(segments, oneBotSegment{Type: "text", Data: map[string]string{"text": msg.Content}})
	}
	if msg.Attachment != nil && msg.Attachment.URL != "" {
		segments = append(segments, oneBotSegment{Type: "image", Data: map[string]string{
			"file": msg.Attachment.URL,
			"name": msg.Attachment.Name,
		}})
	}
	return segments
}

func buildOneBotSendRequest(msg bus.OutboundMessage) (string, interface{}, error) {
	chatID := msg.ChatID
	segments := buildOneBotMessage(msg)
	if len(segments) == 0 {
		return "", nil, fmt.Errorf("nothing to send to %s", chatID)
	}

	if groupID, ok := parseOneBotGroupChatID(chatID); ok {
		id, err := strconv.ParseInt(groupID, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid group ID in chatID: %s", chatID)
		}
		return "send_group_msg", oneBotSendGroupMsgParams{GroupID: id, Message: segments}, nil
	}

	userPart := strings.TrimPrefix(chatID, "private:")
	userID, err := strconv.ParseInt(userPart, 10, 64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid chatID for OneBot: %s: %w", chatID, ErrUnknownChat)
	}
	return "send_private_msg", oneBotSendPrivateMsgParams{UserID: userID, Message: segments}, nil
}

func (c *OneBotChannel) callOneBotAPI(action string, params interface{}, timeout time.Duration) (*oneBotAPIResponse, error) {
	conn := c.currentConn()
	if conn == nil {
		return nil, fmt.Errorf("OneBot WebSocket not connected")
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	echo := c.nextEcho("api")
	waiter := make(chan oneBotAPIResponse, 1)

	c.apiWaitMu.Lock()
	c.apiWaiters[echo] = waiter
	c.apiWaitMu.Unlock()
	defer func() {
		c.apiWaitMu.Lock()
		delete(c.apiWaiters, echo)
		c.apiWaitMu.Unlock()
	}()

	payload, err := json.Marshal(oneBotAPIRequest{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OneBot API request: %w", err)
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to write OneBot API request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var done <-chan struct{}
	if c.ctx != nil {
		done = c.ctx.Done()
	}

	select {
	case resp := <-waiter:
		return &resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("OneBot API request timeout: action=%s", action)
	case <-done:
		return nil, ErrNotRunning
	}
}

func (c *OneBotChannel) listen() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn := c.currentConn()
		if conn == nil {
			logger.WarnC("onebot", "WebSocket connection is nil, listener exiting")
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			logger.ErrorCF("onebot", "WebSocket read error", map[string]interface{}{
				"error": err.Error(),
			})
			c.mu.Lock()
			if c.conn != nil {
				c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}

		var raw oneBotRawEvent
		if err := json.Unmarshal(message, &raw); err != nil {
			logger.WarnCF("onebot", "Failed to unmarshal raw event", map[string]interface{}{
				"error":   err.Error(),
				"payload": utils.Preview(string(message), 200),
			})
			continue
		}

		if raw.Echo != "" {
			c.dispatchAPIResponse(raw, message)
			continue
		}

		rawCopy := raw
		go c.handleRawEvent(&rawCopy)
	}
}

func (c *OneBotChannel) dispatchAPIResponse(raw oneBotRawEvent, payload []byte) {
	var resp oneBotAPIResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		resp = oneBotAPIResponse{Echo: raw.Echo}
	}
	if resp.Echo == "" {
		resp.Echo = raw.Echo
	}
	if resp.Status == "" {
		resp.Status = raw.Status.Text
	}

	c.apiWaitMu.Lock()
	waiter := c.apiWaiters[resp.Echo]
	c.apiWaitMu.Unlock()
	if waiter == nil {
		if resp.Status != "" && resp.Status != "ok" {
			logger.WarnCF("onebot", "API call failed", map[string]interface{}{
				"echo":    resp.Echo,
				"status":  resp.Status,
				"message": resp.Message,
			})
		}
		return
	}

	select {
	case waiter <- resp:
	default:
	}
}

func parseJSONInt64(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseInt(s, 10, 64)
	}
	return 0, fmt.Errorf("cannot parse as int64: %s", string(raw))
}

func parseJSONString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

type parseMessageResult struct {
	Text           string
	IsBotMentioned bool
	HasNonText     bool
}

var oneBotCQPattern = regexp.MustCompile(`\[CQ:([a-zA-Z0-9_]+)(?:,([^\]]*))?\]`)

// parseMessageContent extracts the plain text of a message given either as
// a segment array or as a CQ-coded string. At-segments addressing selfID
// (or "all") mark the bot as mentioned and are dropped from the text.
func parseMessageContent(raw json.RawMessage, rawMessage string, selfID int64) parseMessageResult {
	if len(raw) == 0 {
		return parseOneBotCQMessage(rawMessage, selfID)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseOneBotCQMessage(s, selfID)
	}

	var segments []struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(raw, &segments); err != nil {
		return parseOneBotCQMessage(rawMessage, selfID)
	}

	var text strings.Builder
	result := parseMessageResult{}
	for _, seg := range segments {
		switch seg.Type {
		case "text":
			if t, ok := seg.Data["text"].(string); ok {
				text.WriteString(t)
			}
		case "at":
			if isSelfMention(oneBotDataString(seg.Data["qq"]), selfID) {
				result.IsBotMentioned = true
			}
		case "reply":
		default:
			result.HasNonText = true
		}
	}
	result.Text = strings.TrimSpace(text.String())
	return result
}

func isSelfMention(qq string, selfID int64) bool {
	if qq == "all" {
		return true
	}
	return selfID > 0 && qq == strconv.FormatInt(selfID, 10)
}

func oneBotDataString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func parseOneBotCQMessage(content string, selfID int64) parseMessageResult {
	matches := oneBotCQPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return parseMessageResult{Text: strings.TrimSpace(content)}
	}

	var text strings.Builder
	result := parseMessageResult{}
	cursor := 0
	for _, m := range matches {
		if m[0] > cursor {
			text.WriteString(content[cursor:m[0]])
		}

		segType := content[m[2]:m[3]]
		paramsRaw := ""
		if m[4] >= 0 && m[5] >= 0 {
			paramsRaw = content[m[4]:m[5]]
		}
		params := parseOneBotCQParams(paramsRaw)

		switch segType {
		case "at":
			if isSelfMention(strings.TrimSpace(params["qq"]), selfID) {
				result.IsBotMentioned = true
			}
		case "reply":
		default:
			result.HasNonText = true
		}
		cursor = m[1]
	}
	if cursor < len(content) {
		text.WriteString(content[cursor:])
	}

	result.Text = strings.TrimSpace(text.String())
	return result
}

func parseOneBotCQParams(params string) map[string]string {
	result := make(map[string]string)
	for _, item := range strings.Split(params, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		result[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return result
}

func (c *OneBotChannel) handleRawEvent(raw *oneBotRawEvent) {
	switch raw.PostType {
	case "message":
		evt, err := c.normalizeMessageEvent(raw)
		if err != nil {
			logger.WarnCF("onebot", "Failed to normalize message event", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		c.handleMessage(evt)
	case "meta_event":
		c.handleMetaEvent(raw)
	case "notice":
		c.handleNoticeEvent(raw)
	case "request":
		c.handleRequestEvent(raw)
	default:
		logger.DebugCF("onebot", "Unknown post_type", map[string]interface{}{
			"post_type": raw.PostType,
		})
	}
}

func (c *OneBotChannel) normalizeMessageEvent(raw *oneBotRawEvent) (*oneBotEvent, error) {
	userID, err := parseJSONInt64(raw.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w (raw: %s)", err, string(raw.UserID))
	}

	groupID, _ := parseJSONInt64(raw.GroupID)
	selfID, _ := parseJSONInt64(raw.SelfID)

	parsed := parseMessageContent(raw.Message, raw.RawMessage, selfID)

	var sender oneBotSender
	if len(raw.Sender) > 0 {
		if err := json.Unmarshal(raw.Sender, &sender); err != nil {
			logger.WarnCF("onebot", "Failed to parse sender", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return &oneBotEvent{
		MessageType:    raw.MessageType,
		MessageID:      parseJSONString(raw.MessageID),
		UserID:         userID,
		GroupID:        groupID,
		Content:        parsed.Text,
		IsBotMentioned: parsed.IsBotMentioned,
		HasNonText:     parsed.HasNonText,
		Sender:         sender,
		SelfID:         selfID,
	}, nil
}

func (c *OneBotChannel) handleMetaEvent(raw *oneBotRawEvent) {
	switch raw.MetaEventType {
	case "lifecycle":
		logger.InfoCF("onebot", "Lifecycle event", map[string]interface{}{
			"sub_type": raw.SubType,
		})
	case "heartbeat":
		logger.DebugCF("onebot", "Heartbeat received", map[string]interface{}{
			"online": raw.Status.Online,
			"good":   raw.Status.Good,
		})
	}
}

func (c *OneBotChannel) handleNoticeEvent(raw *oneBotRawEvent) {
	userID, _ := parseJSONInt64(raw.UserID)
	groupID, _ := parseJSONInt64(raw.GroupID)
	switch raw.NoticeType {
	case "group_increase":
		logger.InfoCF("onebot", "Member joined group", map[string]interface{}{
			"group": groupID,
			"user":  userID,
		})
	default:
		logger.DebugCF("onebot", "Notice event received", map[string]interface{}{
			"notice_type": raw.NoticeType,
			"sub_type":    raw.SubType,
		})
	}
}

// handleRequestEvent accepts group invitations when configured. Friend
// requests are only logged.
func (c *OneBotChannel) handleRequestEvent(raw *oneBotRawEvent) {
	userID, _ := parseJSONInt64(raw.UserID)
	groupID, _ := parseJSONInt64(raw.GroupID)

	switch raw.RequestType {
	case "group":
		fields := map[string]interface{}{
			"group":    groupID,
			"inviter":  userID,
			"sub_type": raw.SubType,
		}
		if raw.SubType != "invite" || !c.config.AcceptGroupInvite {
			logger.InfoCF("onebot", "Group request received", fields)
			return
		}
		if err := c.approve(raw.Flag, raw.SubType); err != nil {
			fields["error"] = err.Error()
			logger.ErrorCF("onebot", "Failed to accept group invite", fields)
			return
		}
		logger.InfoCF("onebot", "Accepted group invite", fields)
	case "friend":
		logger.InfoCF("onebot", "Friend request received", map[string]interface{}{
			"user":    userID,
			"comment": raw.Comment,
		})
	}
}

func (c *OneBotChannel) approveGroupInvite(flag, subType string) error {
	resp, err := c.callOneBotAPI("set_group_add_request", oneBotSetGroupAddRequestParams{
		Flag:    flag,
		SubType: subType,
		Approve: true,
	}, 0)
	if err != nil {
		return err
	}
	if resp.Status != "" && resp.Status != "ok" {
		return fmt.Errorf("set_group_add_request: %s %s", resp.Status, resp.Message)
	}
	return nil
}

func (c *OneBotChannel) handleMessage(evt *oneBotEvent) {
	if c.isDuplicate(evt.MessageID) {
		return
	}

	senderID := strconv.FormatInt(evt.UserID, 10)
	if !c.IsAllowed(senderID) {
		logger.DebugCF("onebot", "Message ignored (sender not allowed)", map[string]interface{}{
			"sender":     senderID,
			"message_id": evt.MessageID,
		})
		return
	}

	content := strings.TrimSpace(evt.Content)
	senderName := evt.Sender.Card
	if senderName == "" {
		senderName = evt.Sender.Nickname
	}

	metadata := map[string]string{
		bus.MetaMessageID:   evt.MessageID,
		bus.MetaMessageKind: bus.KindText,
		bus.MetaSenderName:  senderName,
	}
	// Any image or other rich segment makes the whole message non-text.
	if evt.HasNonText {
		metadata[bus.MetaMessageKind] = "media"
	}

	var chatID string
	switch evt.MessageType {
	case "private":
		chatID = "private:" + senderID
		metadata[bus.MetaPeerKind] = bus.PeerDirect
		metadata[bus.MetaTargetAlias] = senderID

	case "group":
		groupIDStr := strconv.FormatInt(evt.GroupID, 10)
		if !c.isGroupAllowed(groupIDStr) {
			logger.DebugCF("onebot", "Group message ignored (group not allowed)", map[string]interface{}{
				"sender": senderID,
				"group":  groupIDStr,
			})
			return
		}
		chatID = "group:" + groupIDStr
		metadata[bus.MetaPeerKind] = bus.PeerGroup
		metadata[bus.MetaTargetAlias] = chatID
		metadata[bus.MetaRoomTopic] = groupIDStr
		if evt.IsBotMentioned {
			// At-segments are already dropped from the text.
			metadata[bus.MetaMentioned] = "true"
		}

	default:
		logger.WarnCF("onebot", "Unknown message type, cannot route", map[string]interface{}{
			"type":       evt.MessageType,
			"message_id": evt.MessageID,
		})
		return
	}

	logger.DebugCF("onebot", "Forwarding message to bus", map[string]interface{}{
		"sender_id": senderID,
		"chat_id":   chatID,
		"content":   utils.Preview(content, 100),
	})

	c.HandleMessage(senderID, chatID, content, nil, metadata)
}

func (c *OneBotChannel) isDuplicate(messageID string) bool {
	if messageID == "" || messageID == "0" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.dedup[messageID]; exists {
		return true
	}

	if old := c.dedupRing[c.dedupIdx]; old != "" {
		delete(c.dedup, old)
	}
	c.dedupRing[c.dedupIdx] = messageID
	c.dedup[messageID] = struct{}{}
	c.dedupIdx = (c.dedupIdx + 1) % len(c.dedupRing)

	return false
}

func (c *OneBotChannel) isGroupAllowed(groupID string) bool {
	if len(c.config.AllowGroups) == 0 {
		return true
	}
	for _, allowed := range c.config.AllowGroups {
		if strings.TrimSpace(strings.TrimPrefix(allowed, "group:")) == groupID {
			return true
		}
	}
	return false
}

func parseOneBotGroupChatID(chatID string) (string, bool) {
	if !strings.HasPrefix(chatID, "group:") {
		return "", false
	}
	groupID := strings.TrimSpace(strings.TrimPrefix(chatID, "group:"))
	if groupID == "" {
		return "", false
	}
	return groupID, true
}
