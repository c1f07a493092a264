package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sipeed/picochat/pkg/providers"
	"github.com/sipeed/picochat/pkg/session"
)

type fakeCompleter struct {
	mu    sync.Mutex
	calls []providers.SendOptions
	texts []string
	err   error
	n     int
}

func (f *fakeCompleter) SendMessage(ctx context.Context, text string, opts providers.SendOptions) (*providers.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	f.n++
	conv := opts.ConversationID
	if conv == "" {
		conv = fmt.Sprintf("conv-%d", f.n)
	}
	return &providers.ChatMessage{
		ID:             fmt.Sprintf("msg-%d", f.n),
		Role:           providers.RoleAssistant,
		Text:           "answer to " + text,
		ConversationID: conv,
	}, nil
}

func newChatTool(c providers.Completer) (*ChatTool, *session.SessionManager) {
	sm := session.NewSessionManager(session.NewMapStore())
	return NewChatTool(c, sm, ChatToolOptions{
		FallbackReply:  "fallback",
		RateLimitReply: "slow down",
	}), sm
}

func TestChatToolRecordsContinuation(t *testing.T) {
	fc := &fakeCompleter{}
	tool, sm := newChatTool(fc)

	res, err := tool.Execute(context.Background(), Call{SenderID: "alice", Input: "hi"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Text != "answer to hi" {
		t.Fatalf("Text = %q", res.Text)
	}
	state, ok := sm.Lookup("alice")
	if !ok || state.ConversationID != "conv-1" || state.ParentMessageID != "msg-1" {
		t.Fatalf("state = %+v, %v; want conv-1/msg-1", state, ok)
	}

	if _, err := tool.Execute(context.Background(), Call{SenderID: "alice", Input: "more"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if fc.calls[1].ParentMessageID != "msg-1" || fc.calls[1].ConversationID != "conv-1" {
		t.Fatalf("second call opts = %+v, want continuation of msg-1", fc.calls[1])
	}
	state, _ = sm.Lookup("alice")
	if state.ParentMessageID != "msg-2" {
		t.Fatalf("ParentMessageID = %q, want msg-2", state.ParentMessageID)
	}
}

func TestChatToolFailureKeepsState(t *testing.T) {
	fc := &fakeCompleter{}
	tool, sm := newChatTool(fc)

	tool.Execute(context.Background(), Call{SenderID: "alice", Input: "a"})
	tool.Execute(context.Background(), Call{SenderID: "bob", Input: "b"})

	fc.err = errors.New("connection reset")
	res, err := tool.Execute(context.Background(), Call{SenderID: "alice", Input: "again"})
	if err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	if res.Text != "fallback" {
		t.Fatalf("Text = %q, want fallback", res.Text)
	}
	if res.Err == nil {
		t.Fatal("Result.Err = nil, want cause")
	}

	alice, _ := sm.Lookup("alice")
	bob, _ := sm.Lookup("bob")
	if alice.ParentMessageID != "msg-1" {
		t.Fatalf("alice ParentMessageID = %q, want msg-1", alice.ParentMessageID)
	}
	if bob.ParentMessageID != "msg-2" {
		t.Fatalf("bob ParentMessageID = %q, want msg-2", bob.ParentMessageID)
	}
}

func TestChatToolRateLimitReply(t *testing.T) {
	fc := &fakeCompleter{err: fmt.Errorf("%w: too many", providers.ErrRateLimited)}
	tool, sm := newChatTool(fc)

	res, err := tool.Execute(context.Background(), Call{SenderID: "alice", Input: "hi"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Text != "slow down" {
		t.Fatalf("Text = %q, want rate-limit reply", res.Text)
	}
	if sm.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 after failure", sm.Count())
	}
}

func TestRegistryExecute(t *testing.T) {
	r := NewToolRegistry()
	tool, _ := newChatTool(&fakeCompleter{})
	r.Register(tool)

	if r.Count() != 1 || r.List()[0] != ChatToolName {
		t.Fatalf("List() = %v", r.List())
	}
	res, err := r.Execute(context.Background(), ChatToolName, Call{SenderID: "s", Input: "x"})
	if err != nil || res.Text != "answer to x" {
		t.Fatalf("Execute() = %+v, %v", res, err)
	}
	if _, err := r.Execute(context.Background(), "missing", Call{}); err == nil {
		t.Fatal("Execute(missing) error = nil")
	}
	if len(r.GetSummaries()) != 1 {
		t.Fatalf("GetSummaries() = %v", r.GetSummaries())
	}
}
