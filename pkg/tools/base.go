package tools

import (
	"context"
	"errors"

	"github.com/sipeed/picochat/pkg/bus"
)

// ErrNoResult means the tool ran but produced nothing worth sending.
var ErrNoResult = errors.New("tool produced no result")

// Call carries the request text and where it came from.
type Call struct {
	Channel  string
	ChatID   string
	SenderID string
	Input    string
}

type Result struct {
	Text       string
	Attachment *bus.Attachment
	// Err is set when Text is a fallback produced after a failure.
	Err error
}

type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, call Call) (*Result, error)
}
