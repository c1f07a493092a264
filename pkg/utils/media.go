package utils

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type DownloadOptions struct {
	Timeout   time.Duration
	UserAgent string
	// MaxBytes caps the body size; zero means 20 MiB.
	MaxBytes int64
}

// DownloadFile fetches url into memory.
func DownloadFile(ctx context.Context, url string, opts DownloadOptions) ([]byte, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 20 << 20
	}

	client := resty.New().SetTimeout(opts.Timeout)
	req := client.R().SetContext(ctx)
	if opts.UserAgent != "" {
		req.SetHeader("User-Agent", opts.UserAgent)
	}

	resp, err := req.Get(url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode())
	}
	body := resp.Body()
	if int64(len(body)) > opts.MaxBytes {
		return nil, fmt.Errorf("download %s: %d bytes exceeds limit", url, len(body))
	}
	return body, nil
}

// TimestampFilename returns "<unix-ms><ext>".
func TimestampFilename(t time.Time, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strconv.FormatInt(t.UnixMilli(), 10) + ext
}

// SanitizeFilename strips path separators and characters that common
// filesystems reject.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", "\x00", "",
	)
	name = strings.TrimSpace(replacer.Replace(name))
	name = strings.Trim(name, ".")
	if name == "" {
		return "file"
	}
	return name
}
