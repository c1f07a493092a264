package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/utils"
)

const defaultSystemMessage = "You are ChatGPT, a large language model trained by OpenAI. Answer as concisely as possible.\nCurrent date: %s"

type ChatGPTOptions struct {
	APIKey           string
	APIBase          string
	Proxy            string
	Model            string
	MaxTokens        int
	MaxModelTokens   int
	Temperature      float64
	SystemMessage    string
	Timeout          time.Duration
	MessageCacheSize int
}

// ChatGPTClient talks to an OpenAI-compatible chat completion endpoint and
// keeps recent turns in memory so a ParentMessageID is enough to continue
// a conversation.
type ChatGPTClient struct {
	client         *openai.Client
	messages       *lru.Cache[string, ChatMessage]
	model          string
	maxTokens      int
	maxModelTokens int
	temperature    float32
	systemMessage  string
	timeout        time.Duration
	now            func() time.Time
}

func NewChatGPTClient(opts ChatGPTOptions) (*ChatGPTClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("api key is required")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.APIBase != "" {
		cfg.BaseURL = strings.TrimRight(opts.APIBase, "/")
	}
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", opts.Proxy, err)
		}
		cfg.HTTPClient = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	cacheSize := opts.MessageCacheSize
	if cacheSize <= 0 {
		cacheSize = 10000
	}
	messages, err := lru.New[string, ChatMessage](cacheSize)
	if err != nil {
		return nil, err
	}

	c := &ChatGPTClient{
		client:         openai.NewClientWithConfig(cfg),
		messages:       messages,
		model:          opts.Model,
		maxTokens:      opts.MaxTokens,
		maxModelTokens: opts.MaxModelTokens,
		temperature:    float32(opts.Temperature),
		systemMessage:  opts.SystemMessage,
		timeout:        opts.Timeout,
		now:            time.Now,
	}
	if c.model == "" {
		c.model = openai.GPT3Dot5Turbo
	}
	if c.maxTokens <= 0 {
		c.maxTokens = 1000
	}
	if c.maxModelTokens <= c.maxTokens {
		c.maxModelTokens = c.maxTokens + 3096
	}
	if c.timeout <= 0 {
		c.timeout = 120 * time.Second
	}
	return c, nil
}

func (c *ChatGPTClient) SendMessage(ctx context.Context, text string, opts SendOptions) (*ChatMessage, error) {
	conversationID := opts.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	userMsg := ChatMessage{
		ID:              uuid.NewString(),
		Role:            RoleUser,
		Text:            text,
		ConversationID:  conversationID,
		ParentMessageID: opts.ParentMessageID,
	}

	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := c.buildMessages(userMsg)
	logger.DebugCF("provider", "Sending completion request", map[string]interface{}{
		"model":           c.model,
		"messages":        len(messages),
		"conversation_id": conversationID,
		"parent_id":       opts.ParentMessageID,
		"preview":         utils.Preview(text, 60),
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:           c.model,
		Messages:        messages,
		MaxTokens:       c.maxTokens,
		Temperature:     c.temperature,
		TopP:            1,
		PresencePenalty: 1,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}

	replyID := resp.ID
	if replyID == "" {
		replyID = uuid.NewString()
	}
	reply := ChatMessage{
		ID:              replyID,
		Role:            RoleAssistant,
		Text:            strings.TrimSpace(resp.Choices[0].Message.Content),
		ConversationID:  conversationID,
		ParentMessageID: userMsg.ID,
	}

	c.messages.Add(userMsg.ID, userMsg)
	c.messages.Add(reply.ID, reply)

	logger.DebugCF("provider", "Completion received", map[string]interface{}{
		"id":                reply.ID,
		"completion_tokens": resp.Usage.CompletionTokens,
		"prompt_tokens":     resp.Usage.PromptTokens,
	})
	return &reply, nil
}

// buildMessages walks the parent chain newest-first until the prompt budget
// (model window minus reply budget) is spent.
func (c *ChatGPTClient) buildMessages(userMsg ChatMessage) []openai.ChatCompletionMessage {
	system := c.systemPrompt()
	budget := c.maxModelTokens - c.maxTokens
	used := estimateTokens(system) + estimateTokens(userMsg.Text)

	history := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: userMsg.Text}}
	seen := map[string]bool{}
	for parentID := userMsg.ParentMessageID; parentID != "" && !seen[parentID]; {
		seen[parentID] = true
		parent, ok := c.messages.Get(parentID)
		if !ok {
			break
		}
		cost := estimateTokens(parent.Text)
		if used+cost > budget {
			break
		}
		used += cost

		role := openai.ChatMessageRoleUser
		if parent.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		history = append(history, openai.ChatCompletionMessage{Role: role, Content: parent.Text})
		parentID = parent.ParentMessageID
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for i := len(history) - 1; i >= 0; i-- {
		messages = append(messages, history[i])
	}
	return messages
}

func (c *ChatGPTClient) systemPrompt() string {
	if c.systemMessage != "" {
		return c.systemMessage
	}
	return fmt.Sprintf(defaultSystemMessage, c.now().Format("2006-01-02"))
}

func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrRateLimited, reqErr.Err)
	}
	return fmt.Errorf("completion request failed: %w", err)
}

// estimateTokens uses the 4 chars per token heuristic.
func estimateTokens(s string) int {
	return len(s)/4 + 1
}
