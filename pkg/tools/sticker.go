package tools

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/utils"
)

const StickerToolName = "sticker"

type StickerToolOptions struct {
	Endpoint  string
	Timeout   time.Duration
	UserAgent string
}

// StickerTool searches an emoji index and returns one hit, chosen at
// random, as a .gif attachment. The extension is always .gif so
// transports send it as an animation even when the source is static.
// The image bytes are fetched here so outbound delivery never waits on
// the image host.
type StickerTool struct {
	endpoint string
	client   *resty.Client
	fetch    func(ctx context.Context, url string) ([]byte, error)
	pick     func(n int) int
	now      func() time.Time
}

func NewStickerTool(opts StickerToolOptions) *StickerTool {
	client := resty.New()
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	download := utils.DownloadOptions{Timeout: opts.Timeout, UserAgent: opts.UserAgent}
	return &StickerTool{
		endpoint: opts.Endpoint,
		client:   client,
		fetch: func(ctx context.Context, url string) ([]byte, error) {
			return utils.DownloadFile(ctx, url, download)
		},
		pick: rand.IntN,
		now:  time.Now,
	}
}

func (t *StickerTool) Name() string {
	return StickerToolName
}

func (t *StickerTool) Description() string {
	return "Search a sticker by keyword and send it as an animated gif"
}

func (t *StickerTool) Execute(ctx context.Context, call Call) (*Result, error) {
	keyword := strings.TrimSpace(call.Input)

	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"keyword":   keyword,
			"spver":     "",
			"rcer":      "",
			"tag":       "0",
			"routeName": "emosearch",
		}).
		Get(t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("sticker search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("sticker search: status %d", resp.StatusCode())
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("sticker search: malformed response")
	}

	var urls []string
	for _, v := range gjson.GetBytes(body, "data.emotions.#.thumbSrc").Array() {
		if u := strings.TrimSpace(v.String()); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("sticker search %q: %w", keyword, ErrNoResult)
	}

	att := &bus.Attachment{
		Name: utils.TimestampFilename(t.now(), ".gif"),
		URL:  urls[t.pick(len(urls))],
	}
	// Transports that can post a link still work when the fetch fails.
	data, err := t.fetch(ctx, att.URL)
	if err != nil {
		logger.WarnCF("sticker", "Sticker prefetch failed", map[string]interface{}{
			"url":   att.URL,
			"error": err.Error(),
		})
	} else {
		att.Data = data
	}
	return &Result{Attachment: att}, nil
}
