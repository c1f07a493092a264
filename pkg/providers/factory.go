package providers

import (
	"github.com/sipeed/picochat/pkg/config"
)

func CreateProvider(cfg *config.Config) (Completer, error) {
	p := cfg.Providers.OpenAI
	client, err := NewChatGPTClient(ChatGPTOptions{
		APIKey:           cfg.GetAPIKey(),
		APIBase:          cfg.GetAPIBase(),
		Proxy:            p.Proxy,
		Model:            p.Model,
		MaxTokens:        p.MaxTokens,
		MaxModelTokens:   p.MaxModelTokens,
		Temperature:      p.Temperature,
		SystemMessage:    p.SystemMessage,
		Timeout:          cfg.CompletionTimeout(),
		MessageCacheSize: p.MessageCacheSize,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
