package channels

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/eatmoreapple/openwechat"
	"github.com/skip2/go-qrcode"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/utils"
)

const (
	wechatLoginURL  = "https://login.weixin.qq.com/l/"
	wechatQRService = "https://api.qrserver.com/v1/create-qr-code/?data="
)

// WeChatChannel bridges a personal WeChat account through the web
// protocol. Login state is kept in a hot-reload file so restarts do not
// need a new scan.
type WeChatChannel struct {
	*BaseChannel
	config   config.WeChatConfig
	bot      *openwechat.Bot
	self     *openwechat.Self
	contacts map[string]*openwechat.User
	mu       sync.RWMutex
	now      func() time.Time

	resolveSelfName func(room *openwechat.User) string
}

// wechatInbound is the transport-independent view of one WeChat message.
type wechatInbound struct {
	MessageID  string
	IsText     bool
	IsGroup    bool
	Mentioned  bool
	SenderID   string
	SenderName string
	ChatID     string
	Alias      string
	RoomTopic  string
	SelfName   string
	Content    string
}

func NewWeChatChannel(cfg config.WeChatConfig, messageBus *bus.MessageBus) (*WeChatChannel, error) {
	c := &WeChatChannel{
		BaseChannel: NewBaseChannel("wechat", cfg, messageBus, cfg.AllowFrom),
		config:      cfg,
		contacts:    make(map[string]*openwechat.User),
		now:         time.Now,
	}
	c.resolveSelfName = func(room *openwechat.User) string {
		return c.selfNameIn(&openwechat.Group{User: room})
	}
	return c, nil
}

func (c *WeChatChannel) Start(ctx context.Context) error {
	logger.InfoC("wechat", "Starting WeChat channel")

	if c.config.Desktop {
		c.bot = openwechat.DefaultBot(openwechat.Desktop)
	} else {
		c.bot = openwechat.DefaultBot()
	}
	c.bot.UUIDCallback = printLoginQRCode
	c.bot.ScanCallBack = func(body openwechat.CheckLoginResponse) {
		logger.InfoC("wechat", "QR code scanned, confirm on the phone")
	}
	c.bot.LoginCallBack = func(body openwechat.CheckLoginResponse) {
		logger.InfoC("wechat", "Login confirmed")
	}
	c.bot.LogoutCallBack = func(bot *openwechat.Bot) {
		c.setRunning(false)
		logger.WarnC("wechat", "Logged out")
	}
	c.bot.MessageHandler = c.onMessage

	go c.run(ctx)
	return nil
}

func (c *WeChatChannel) run(ctx context.Context) {
	storagePath := config.ExpandHome(c.config.HotLoginStorage)
	if storagePath != "" {
		if err := os.MkdirAll(filepath.Dir(storagePath), 0755); err != nil {
			logger.WarnCF("wechat", "Cannot create login storage directory", map[string]interface{}{
				"path":  storagePath,
				"error": err.Error(),
			})
		}
	}

	var err error
	if storagePath != "" {
		storage := openwechat.NewFileHotReloadStorage(storagePath)
		err = c.bot.HotLogin(storage, openwechat.NewRetryLoginOption())
	} else {
		err = c.bot.Login()
	}
	if err != nil {
		logger.ErrorCF("wechat", "Login failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	self, err := c.bot.GetCurrentUser()
	if err != nil {
		logger.ErrorCF("wechat", "Failed to load current user", map[string]interface{}{
			"error": err.Error(),
		})
		c.bot.Logout()
		return
	}

	c.mu.Lock()
	c.self = self
	c.mu.Unlock()
	c.setRunning(true)

	logger.InfoCF("wechat", "Logged in", map[string]interface{}{
		"user": self.NickName,
	})

	go func() {
		<-ctx.Done()
		if c.bot.Alive() {
			c.bot.Exit()
		}
	}()

	if err := c.bot.Block(); err != nil {
		logger.WarnCF("wechat", "Bot stopped", map[string]interface{}{
			"error": err.Error(),
		})
	}
	c.setRunning(false)
}

func (c *WeChatChannel) Stop(ctx context.Context) error {
	logger.InfoC("wechat", "Stopping WeChat channel")
	c.setRunning(false)
	if c.bot != nil && c.bot.Alive() {
		c.bot.Exit()
	}
	return nil
}

func printLoginQRCode(uuid string) {
	link := wechatLoginURL + uuid
	if q, err := qrcode.New(link, qrcode.Low); err == nil {
		fmt.Println(q.ToString(true))
	}
	logger.InfoCF("wechat", "Scan the QR code to log in", map[string]interface{}{
		"qrcode_url": wechatQRService + url.QueryEscape(link),
	})
}

func (c *WeChatChannel) onMessage(msg *openwechat.Message) {
	if msg.IsSendBySelf() {
		return
	}

	switch {
	case msg.IsFriendAdd():
		logger.InfoCF("wechat", "Friend request received", map[string]interface{}{
			"from": msg.RecommendInfo.NickName,
		})
		return
	case msg.IsJoinGroup():
		// The web protocol joins invited rooms on its own.
		logger.InfoCF("wechat", "Room membership changed", map[string]interface{}{
			"content": utils.Preview(msg.Content, 80),
		})
		return
	}

	in, err := c.readMessage(msg)
	if err != nil {
		logger.WarnCF("wechat", "Failed to resolve message sender", map[string]interface{}{
			"message_id": msg.MsgId,
			"error":      err.Error(),
		})
		return
	}
	if !in.IsText {
		logger.DebugCF("wechat", "Non-text message ignored", map[string]interface{}{
			"chat_id": in.ChatID,
		})
		return
	}

	c.HandleMessage(in.SenderID, in.ChatID, in.Content, nil, in.metadata())
}

func (c *WeChatChannel) readMessage(msg *openwechat.Message) (wechatInbound, error) {
	sender, err := msg.Sender()
	if err != nil {
		return wechatInbound{}, err
	}

	in := wechatInbound{
		MessageID: msg.MsgId,
		IsText:    msg.IsText(),
		Content:   msg.Content,
		ChatID:    sender.UserName,
		Alias:     contactAlias(sender),
	}
	c.remember(sender)

	if !msg.IsSendByGroup() {
		in.SenderID = sender.UserName
		in.SenderName = sender.NickName
		return in, nil
	}

	talker, err := msg.SenderInGroup()
	if err != nil {
		return wechatInbound{}, err
	}
	c.fillGroup(&in, sender, talker, msg.IsAt())
	return in, nil
}

func (c *WeChatChannel) fillGroup(in *wechatInbound, room, talker *openwechat.User, mentioned bool) {
	in.IsGroup = true
	in.Mentioned = mentioned
	in.SenderID = talker.UserName
	in.SenderName = talker.NickName
	in.RoomTopic = room.NickName
	// Member lookup is a round trip; only mentions need the room name.
	if mentioned {
		in.SelfName = c.resolveSelfName(room)
	}
}

func (in wechatInbound) metadata() map[string]string {
	kind := bus.KindText
	if !in.IsText {
		kind = "other"
	}
	meta := map[string]string{
		bus.MetaMessageID:   in.MessageID,
		bus.MetaMessageKind: kind,
		bus.MetaPeerKind:    bus.PeerDirect,
		bus.MetaTargetAlias: in.Alias,
		bus.MetaSenderName:  in.SenderName,
	}
	if in.IsGroup {
		meta[bus.MetaPeerKind] = bus.PeerGroup
		meta[bus.MetaRoomTopic] = in.RoomTopic
		meta[bus.MetaSelfName] = in.SelfName
		if in.Mentioned {
			meta[bus.MetaMentioned] = "true"
		}
	}
	return meta
}

// contactAlias is the remark name the account owner gave the contact or
// room. Nicknames are chosen by the contact and never count as an alias.
func contactAlias(u *openwechat.User) string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.RemarkName)
}

// selfNameIn returns how the bot appears in the room, which is what
// members type after "@".
func (c *WeChatChannel) selfNameIn(group *openwechat.Group) string {
	c.mu.RLock()
	self := c.self
	c.mu.RUnlock()
	if self == nil {
		return ""
	}

	if members, err := group.Members(); err == nil {
		for _, m := range members {
			if m.UserName == self.UserName && strings.TrimSpace(m.DisplayName) != "" {
				return m.DisplayName
			}
		}
	}
	return self.NickName
}

func (c *WeChatChannel) remember(u *openwechat.User) {
	c.mu.Lock()
	c.contacts[u.UserName] = u
	c.mu.Unlock()
}

func (c *WeChatChannel) lookup(chatID string) (*openwechat.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.contacts[chatID]
	return u, ok
}

// Send delivers text and, when present, the attachment as an image. Only
// chats the bot has already heard from can be addressed.
func (c *WeChatChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}

	user, ok := c.lookup(msg.ChatID)
	if !ok {
		return fmt.Errorf("wechat chat %s: %w", msg.ChatID, ErrUnknownChat)
	}

	if msg.Content != "" {
		if _, err := c.sendText(user, msg.Content); err != nil {
			return fmt.Errorf("wechat send text: %w", err)
		}
	}
	if msg.Attachment != nil {
		if err := c.sendAttachment(ctx, user, msg.Attachment); err != nil {
			return fmt.Errorf("wechat send attachment: %w", err)
		}
	}
	return nil
}

func (c *WeChatChannel) sendText(user *openwechat.User, text string) (*openwechat.SentMessage, error) {
	if user.IsGroup() {
		return (&openwechat.Group{User: user}).SendText(text)
	}
	return (&openwechat.Friend{User: user}).SendText(text)
}

func (c *WeChatChannel) sendAttachment(ctx context.Context, user *openwechat.User, att *bus.Attachment) error {
	path, err := c.stageAttachment(ctx, att)
	if err != nil || path == "" {
		return err
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// SendImage posts an inline image, animated when the file is a gif.
	if user.IsGroup() {
		_, err = (&openwechat.Group{User: user}).SendImage(f)
	} else {
		_, err = (&openwechat.Friend{User: user}).SendImage(f)
	}
	return err
}

// stageAttachment writes the attachment to a temp file and returns its
// path, or "" when there is nothing to send.
func (c *WeChatChannel) stageAttachment(ctx context.Context, att *bus.Attachment) (string, error) {
	data := att.Data
	if len(data) == 0 {
		if att.URL == "" {
			return "", nil
		}
		var err error
		data, err = utils.DownloadFile(ctx, att.URL, utils.DownloadOptions{})
		if err != nil {
			return "", err
		}
	}

	name := utils.TimestampFilename(c.now(), ".gif")
	if strings.TrimSpace(att.Name) != "" {
		name = utils.SanitizeFilename(att.Name)
	}
	dir := config.ExpandHome(c.config.TempDir)
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
