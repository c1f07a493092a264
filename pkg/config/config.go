package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Bot       BotConfig       `json:"bot"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Sticker   StickerConfig   `json:"sticker"`
	Session   SessionConfig   `json:"session"`
	Gateway   GatewayConfig   `json:"gateway"`
	Cron      CronConfig      `json:"cron"`
	Log       LogConfig       `json:"log"`
	mu        sync.RWMutex
}

type BotConfig struct {
	// Admin is compared against the alias of the reply target.
	Admin           string              `json:"admin" env:"PICOCHAT_BOT_ADMIN"`
	ChatCommands    FlexibleStringSlice `json:"chat_commands" env:"PICOCHAT_BOT_CHAT_COMMANDS"`
	StickerCommands FlexibleStringSlice `json:"sticker_commands" env:"PICOCHAT_BOT_STICKER_COMMANDS"`
	// Mentioned group text starting with this prefix is left to the
	// command table instead of being sent straight to completion.
	MentionExemptPrefix string `json:"mention_exempt_prefix" env:"PICOCHAT_BOT_MENTION_EXEMPT_PREFIX"`
	PingKeyword         string `json:"ping_keyword" env:"PICOCHAT_BOT_PING_KEYWORD"`
	PingReply           string `json:"ping_reply" env:"PICOCHAT_BOT_PING_REPLY"`
	FallbackReply       string `json:"fallback_reply" env:"PICOCHAT_BOT_FALLBACK_REPLY"`
	RateLimitReply      string `json:"rate_limit_reply" env:"PICOCHAT_BOT_RATE_LIMIT_REPLY"`
	MaxConcurrent       int    `json:"max_concurrent" env:"PICOCHAT_BOT_MAX_CONCURRENT"`
}

type ChannelsConfig struct {
	WeChat   WeChatConfig   `json:"wechat"`
	OneBot   OneBotConfig   `json:"onebot"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	QQ       QQConfig       `json:"qq"`
	DingTalk DingTalkConfig `json:"dingtalk"`
	Feishu   FeishuConfig   `json:"feishu"`
}

type WeChatConfig struct {
	Enabled bool `json:"enabled" env:"PICOCHAT_CHANNELS_WECHAT_ENABLED"`
	// Desktop selects the UOS desktop login mode, which most accounts need.
	Desktop         bool                `json:"desktop" env:"PICOCHAT_CHANNELS_WECHAT_DESKTOP"`
	HotLoginStorage string              `json:"hot_login_storage" env:"PICOCHAT_CHANNELS_WECHAT_HOT_LOGIN_STORAGE"`
	TempDir         string              `json:"temp_dir" env:"PICOCHAT_CHANNELS_WECHAT_TEMP_DIR"`
	AllowFrom       FlexibleStringSlice `json:"allow_from" env:"PICOCHAT_CHANNELS_WECHAT_ALLOW_FROM"`
}

type OneBotConfig struct {
	Enabled           bool                `json:"enabled" env:"PICOCHAT_CHANNELS_ONEBOT_ENABLED"`
	WSUrl             string              `json:"ws_url" env:"PICOCHAT_CHANNELS_ONEBOT_WS_URL"`
	AccessToken       string              `json:"access_token" env:"PICOCHAT_CHANNELS_ONEBOT_ACCESS_TOKEN"`
	ReconnectInterval int                 `json:"reconnect_interval" env:"PICOCHAT_CHANNELS_ONEBOT_RECONNECT_INTERVAL"`
	AcceptGroupInvite bool                `json:"accept_group_invite" env:"PICOCHAT_CHANNELS_ONEBOT_ACCEPT_GROUP_INVITE"`
	AllowGroups       FlexibleStringSlice `json:"allow_groups" env:"PICOCHAT_CHANNELS_ONEBOT_ALLOW_GROUPS"`
	AllowFrom         FlexibleStringSlice `json:"allow_from" env:"PICOCHAT_CHANNELS_ONEBOT_ALLOW_FROM"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled" env:"PICOCHAT_CHANNELS_TELEGRAM_ENABLED"`
	Token     string              `json:"token" env:"PICOCHAT_CHANNELS_TELEGRAM_TOKEN"`
	Proxy     string              `json:"proxy" env:"PICOCHAT_CHANNELS_TELEGRAM_PROXY"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"PICOCHAT_CHANNELS_TELEGRAM_ALLOW_FROM"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled" env:"PICOCHAT_CHANNELS_DISCORD_ENABLED"`
	Token     string              `json:"token" env:"PICOCHAT_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"PICOCHAT_CHANNELS_DISCORD_ALLOW_FROM"`
}

type QQConfig struct {
	Enabled   bool                `json:"enabled" env:"PICOCHAT_CHANNELS_QQ_ENABLED"`
	AppID     string              `json:"app_id" env:"PICOCHAT_CHANNELS_QQ_APP_ID"`
	AppSecret string              `json:"app_secret" env:"PICOCHAT_CHANNELS_QQ_APP_SECRET"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"PICOCHAT_CHANNELS_QQ_ALLOW_FROM"`
}

type DingTalkConfig struct {
	Enabled      bool                `json:"enabled" env:"PICOCHAT_CHANNELS_DINGTALK_ENABLED"`
	ClientID     string              `json:"client_id" env:"PICOCHAT_CHANNELS_DINGTALK_CLIENT_ID"`
	ClientSecret string              `json:"client_secret" env:"PICOCHAT_CHANNELS_DINGTALK_CLIENT_SECRET"`
	AllowFrom    FlexibleStringSlice `json:"allow_from" env:"PICOCHAT_CHANNELS_DINGTALK_ALLOW_FROM"`
}

type FeishuConfig struct {
	Enabled           bool                `json:"enabled" env:"PICOCHAT_CHANNELS_FEISHU_ENABLED"`
	AppID             string              `json:"app_id" env:"PICOCHAT_CHANNELS_FEISHU_APP_ID"`
	AppSecret         string              `json:"app_secret" env:"PICOCHAT_CHANNELS_FEISHU_APP_SECRET"`
	EncryptKey        string              `json:"encrypt_key" env:"PICOCHAT_CHANNELS_FEISHU_ENCRYPT_KEY"`
	VerificationToken string              `json:"verification_token" env:"PICOCHAT_CHANNELS_FEISHU_VERIFICATION_TOKEN"`
	AllowFrom         FlexibleStringSlice `json:"allow_from" env:"PICOCHAT_CHANNELS_FEISHU_ALLOW_FROM"`
}

type ProvidersConfig struct {
	OpenAI ProviderConfig `json:"openai"`
}

type ProviderConfig struct {
	APIKey           string  `json:"api_key" env:"PICOCHAT_PROVIDERS_OPENAI_API_KEY"`
	APIBase          string  `json:"api_base" env:"PICOCHAT_PROVIDERS_OPENAI_API_BASE"`
	Proxy            string  `json:"proxy,omitempty" env:"PICOCHAT_PROVIDERS_OPENAI_PROXY"`
	Model            string  `json:"model" env:"PICOCHAT_PROVIDERS_OPENAI_MODEL"`
	MaxTokens        int     `json:"max_tokens" env:"PICOCHAT_PROVIDERS_OPENAI_MAX_TOKENS"`
	MaxModelTokens   int     `json:"max_model_tokens" env:"PICOCHAT_PROVIDERS_OPENAI_MAX_MODEL_TOKENS"`
	Temperature      float64 `json:"temperature" env:"PICOCHAT_PROVIDERS_OPENAI_TEMPERATURE"`
	SystemMessage    string  `json:"system_message" env:"PICOCHAT_PROVIDERS_OPENAI_SYSTEM_MESSAGE"`
	TimeoutSeconds   int     `json:"timeout_seconds" env:"PICOCHAT_PROVIDERS_OPENAI_TIMEOUT_SECONDS"`
	MessageCacheSize int     `json:"message_cache_size" env:"PICOCHAT_PROVIDERS_OPENAI_MESSAGE_CACHE_SIZE"`
}

type StickerConfig struct {
	Endpoint       string `json:"endpoint" env:"PICOCHAT_STICKER_ENDPOINT"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"PICOCHAT_STICKER_TIMEOUT_SECONDS"`
	UserAgent      string `json:"user_agent" env:"PICOCHAT_STICKER_USER_AGENT"`
}

type SessionConfig struct {
	// Backend is one of memory, lru, ttl, sqlite.
	Backend    string `json:"backend" env:"PICOCHAT_SESSION_BACKEND"`
	MaxEntries int    `json:"max_entries" env:"PICOCHAT_SESSION_MAX_ENTRIES"`
	TTLMinutes int    `json:"ttl_minutes" env:"PICOCHAT_SESSION_TTL_MINUTES"`
	Path       string `json:"path" env:"PICOCHAT_SESSION_PATH"`
}

type GatewayConfig struct {
	Enabled bool   `json:"enabled" env:"PICOCHAT_GATEWAY_ENABLED"`
	Host    string `json:"host" env:"PICOCHAT_GATEWAY_HOST"`
	Port    int    `json:"port" env:"PICOCHAT_GATEWAY_PORT"`
}

type CronConfig struct {
	Enabled   bool   `json:"enabled" env:"PICOCHAT_CRON_ENABLED"`
	StorePath string `json:"store_path" env:"PICOCHAT_CRON_STORE_PATH"`
}

type LogConfig struct {
	Level string `json:"level" env:"PICOCHAT_LOG_LEVEL"`
	File  string `json:"file" env:"PICOCHAT_LOG_FILE"`
}

func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			Admin:               "",
			ChatCommands:        FlexibleStringSlice{"/c", "/chatgpt"},
			StickerCommands:     FlexibleStringSlice{"/表情包"},
			MentionExemptPrefix: "/c",
			PingKeyword:         "ding",
			PingReply:           "dong",
			FallbackReply:       "🤒🤒🤒出了一点小问题，请稍后重试下...",
			RateLimitReply:      "🤯🤯🤯请稍等一下哦，我还在思考你的上一个问题",
			MaxConcurrent:       16,
		},
		Channels: ChannelsConfig{
			WeChat: WeChatConfig{
				Enabled:         true,
				Desktop:         true,
				HotLoginStorage: "~/.picochat/wechat-storage.json",
				TempDir:         "",
				AllowFrom:       FlexibleStringSlice{},
			},
			OneBot: OneBotConfig{
				Enabled:           false,
				WSUrl:             "ws://127.0.0.1:3001",
				ReconnectInterval: 5,
				AcceptGroupInvite: true,
				AllowGroups:       FlexibleStringSlice{},
				AllowFrom:         FlexibleStringSlice{},
			},
			Telegram: TelegramConfig{
				AllowFrom: FlexibleStringSlice{},
			},
			Discord: DiscordConfig{
				AllowFrom: FlexibleStringSlice{},
			},
			QQ: QQConfig{
				AllowFrom: FlexibleStringSlice{},
			},
			DingTalk: DingTalkConfig{
				AllowFrom: FlexibleStringSlice{},
			},
			Feishu: FeishuConfig{
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIBase:          "https://api.openai.com/v1",
				Model:            "gpt-3.5-turbo",
				MaxTokens:        1000,
				MaxModelTokens:   4096,
				Temperature:      0.8,
				TimeoutSeconds:   120,
				MessageCacheSize: 10000,
			},
		},
		Sticker: StickerConfig{
			Endpoint:       "https://pic.sogou.com/napi/wap/emoji/searchlist",
			TimeoutSeconds: 30,
			UserAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15",
		},
		Session: SessionConfig{
			Backend:    "lru",
			MaxEntries: 1000,
			TTLMinutes: 24 * 60,
			Path:       "~/.picochat/conversations.db",
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    18790,
		},
		Cron: CronConfig{
			Enabled:   true,
			StorePath: "~/.picochat/cron/jobs.json",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	cfg.applyLegacyEnv()

	return cfg, nil
}

// applyLegacyEnv honours the variable names used by earlier deployments
// when the corresponding field was not set any other way.
func (c *Config) applyLegacyEnv() {
	if c.Providers.OpenAI.APIKey == "" {
		c.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	for _, key := range []string{"apiBaseUrl", "OPENAI_API_BASE"} {
		if v := os.Getenv(key); v != "" && os.Getenv("PICOCHAT_PROVIDERS_OPENAI_API_BASE") == "" {
			c.Providers.OpenAI.APIBase = v
			break
		}
	}
	if c.Bot.Admin == "" {
		c.Bot.Admin = os.Getenv("ADMIN")
	}
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) GetAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Providers.OpenAI.APIKey
}

func (c *Config) GetAPIBase() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Providers.OpenAI.APIBase
}

func (c *Config) CompletionTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Providers.OpenAI.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.Providers.OpenAI.TimeoutSeconds) * time.Second
}

func (c *Config) SessionPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Session.Path)
}

func (c *Config) CronStorePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Cron.StorePath)
}

func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
