package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/tools"
)

type recordingTool struct {
	name   string
	mu     sync.Mutex
	inputs []string
	result *tools.Result
	err    error
}

func (r *recordingTool) Name() string        { return r.name }
func (r *recordingTool) Description() string { return "test tool " + r.name }

func (r *recordingTool) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	r.mu.Lock()
	r.inputs = append(r.inputs, call.Input)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	return &tools.Result{Text: "chat:" + call.Input}, nil
}

func (r *recordingTool) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.inputs...)
}

type dispatchFixture struct {
	dispatcher *Dispatcher
	chat       *recordingTool
	sticker    *recordingTool
}

func newDispatchFixture(admin string) *dispatchFixture {
	chat := &recordingTool{name: tools.ChatToolName}
	sticker := &recordingTool{
		name:   tools.StickerToolName,
		result: &tools.Result{Attachment: &bus.Attachment{Name: "1.gif", URL: "https://img.example.com/1.png"}},
	}
	registry := tools.NewToolRegistry()
	registry.Register(chat)
	registry.Register(sticker)

	d := NewDispatcher(registry, DispatcherOptions{
		Admin:       admin,
		PingKeyword: "ding",
		PingReply:   "dong",
		Commands: map[string]string{
			"/c":       tools.ChatToolName,
			"/chatgpt": tools.ChatToolName,
			"/表情包":     tools.StickerToolName,
		},
	})
	return &dispatchFixture{dispatcher: d, chat: chat, sticker: sticker}
}

func directRoute(content, alias string) Route {
	return Route{Channel: "wechat", ChatID: "alice", SenderID: "alice", TargetAlias: alias, Content: content}
}

func TestDispatchAdminPing(t *testing.T) {
	f := newDispatchFixture("boss")
	replies, outcome := f.dispatcher.Dispatch(context.Background(), directRoute("ding", "boss"))

	if len(replies) != 1 || replies[0].Content != "dong" {
		t.Fatalf("replies = %+v, want exactly dong", replies)
	}
	if len(f.chat.calls()) != 0 || len(f.sticker.calls()) != 0 {
		t.Fatal("remote tool invoked for ping")
	}
	if outcome.Kind != OutcomeReplied {
		t.Fatalf("outcome = %v", outcome.Kind)
	}
}

func TestDispatchPingFromNonAdminIsIgnored(t *testing.T) {
	f := newDispatchFixture("boss")
	replies, outcome := f.dispatcher.Dispatch(context.Background(), directRoute("ding", "someone"))
	if len(replies) != 0 || outcome.Kind != OutcomeIgnored {
		t.Fatalf("replies = %+v, outcome = %v", replies, outcome.Kind)
	}
}

func TestDispatchUnprefixedNonAdminIgnored(t *testing.T) {
	f := newDispatchFixture("boss")
	replies, outcome := f.dispatcher.Dispatch(context.Background(), directRoute("hello", "someone"))
	if len(replies) != 0 {
		t.Fatalf("replies = %+v, want none", replies)
	}
	if outcome.Kind != OutcomeIgnored {
		t.Fatalf("outcome = %v, want ignored", outcome.Kind)
	}
	if len(f.chat.calls()) != 0 {
		t.Fatal("chat invoked for unprefixed text")
	}
}

func TestDispatchChatCommands(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"/chatgpt hi", "hi"},
		{"/c hi", "hi"},
		{"/c   spaced   out ", "spaced   out"},
		{"/c why does /c appear twice", "why does /c appear twice"},
	}
	for _, tt := range tests {
		f := newDispatchFixture("boss")
		replies, _ := f.dispatcher.Dispatch(context.Background(), directRoute(tt.content, "someone"))
		calls := f.chat.calls()
		if len(calls) != 1 || calls[0] != tt.want {
			t.Fatalf("Dispatch(%q) chat calls = %q, want [%q]", tt.content, calls, tt.want)
		}
		if len(replies) != 1 || replies[0].ChatID != "alice" {
			t.Fatalf("Dispatch(%q) replies = %+v", tt.content, replies)
		}
	}
}

func TestDispatchCommandTokenMustBeWholeWord(t *testing.T) {
	f := newDispatchFixture("boss")
	f.dispatcher.Dispatch(context.Background(), directRoute("/chat hi", "someone"))
	f.dispatcher.Dispatch(context.Background(), directRoute("/chatgpthi", "someone"))
	if len(f.chat.calls()) != 0 {
		t.Fatalf("chat calls = %q, want none", f.chat.calls())
	}
}

func TestDispatchBareChatCommandIgnored(t *testing.T) {
	f := newDispatchFixture("boss")
	replies, outcome := f.dispatcher.Dispatch(context.Background(), directRoute("/c", "someone"))
	if len(replies) != 0 || outcome.Kind != OutcomeIgnored {
		t.Fatalf("replies = %+v, outcome = %v", replies, outcome.Kind)
	}
}

func TestDispatchSticker(t *testing.T) {
	f := newDispatchFixture("boss")
	replies, outcome := f.dispatcher.Dispatch(context.Background(), directRoute("/表情包 cat", "someone"))

	calls := f.sticker.calls()
	if len(calls) != 1 || calls[0] != "cat" {
		t.Fatalf("sticker calls = %q, want [cat]", calls)
	}
	if len(f.chat.calls()) != 0 {
		t.Fatal("chat invoked for sticker command")
	}
	if len(replies) != 1 || replies[0].Attachment == nil {
		t.Fatalf("replies = %+v, want one attachment", replies)
	}
	if outcome.Command != tools.StickerToolName {
		t.Fatalf("outcome.Command = %q", outcome.Command)
	}
}

func TestDispatchStickerWithoutResultSendsNothing(t *testing.T) {
	f := newDispatchFixture("boss")
	f.sticker.err = fmt.Errorf("search: %w", tools.ErrNoResult)

	replies, outcome := f.dispatcher.Dispatch(context.Background(), directRoute("/表情包 nothing", "someone"))
	if len(replies) != 0 {
		t.Fatalf("replies = %+v, want none", replies)
	}
	if outcome.Kind != OutcomeNothingToSend {
		t.Fatalf("outcome = %v, want nothing_to_send", outcome.Kind)
	}

	f.sticker.err = errors.New("network down")
	replies, outcome = f.dispatcher.Dispatch(context.Background(), directRoute("/表情包 x", "someone"))
	if len(replies) != 0 || outcome.Kind != OutcomeFailed {
		t.Fatalf("replies = %+v, outcome = %v", replies, outcome.Kind)
	}
}

func TestDispatchAdminFreeTextGoesToChat(t *testing.T) {
	f := newDispatchFixture("boss")
	replies, _ := f.dispatcher.Dispatch(context.Background(), directRoute("tell me a joke", "boss"))
	calls := f.chat.calls()
	if len(calls) != 1 || calls[0] != "tell me a joke" {
		t.Fatalf("chat calls = %q", calls)
	}
	if len(replies) != 1 || replies[0].Content != "chat:tell me a joke" {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestDispatchEmptyAdminDisablesGate(t *testing.T) {
	f := newDispatchFixture("")
	replies, _ := f.dispatcher.Dispatch(context.Background(), directRoute("ding", ""))
	if len(replies) != 0 {
		t.Fatalf("replies = %+v, want none when admin is unset", replies)
	}
}

func TestDispatchGroupHandlesMentionOnce(t *testing.T) {
	f := newDispatchFixture("boss")
	r := NewRouter("/c")

	route, _ := r.Route(groupMsg("@Bot /表情包 cat", true, "Bot"))
	replies, _ := f.dispatcher.Dispatch(context.Background(), route)
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	if len(f.sticker.calls()) != 1 || len(f.chat.calls()) != 0 {
		t.Fatalf("sticker=%q chat=%q, want one sticker call only", f.sticker.calls(), f.chat.calls())
	}
	if replies[0].ChatID != "@@room" {
		t.Fatalf("reply ChatID = %q, want the room", replies[0].ChatID)
	}
}

func TestDispatchGroupMentionGoesToChat(t *testing.T) {
	f := newDispatchFixture("boss")
	r := NewRouter("/c")

	route, _ := r.Route(groupMsg("@Bot how are you", true, "Bot"))
	f.dispatcher.Dispatch(context.Background(), route)
	if calls := f.chat.calls(); len(calls) != 1 || calls[0] != "how are you" {
		t.Fatalf("chat calls = %q", calls)
	}

	route, _ = r.Route(groupMsg("@Bot /c how are you", true, "Bot"))
	f.dispatcher.Dispatch(context.Background(), route)
	if calls := f.chat.calls(); len(calls) != 2 || calls[1] != "how are you" {
		t.Fatalf("chat calls = %q", calls)
	}
}

func TestDispatchGroupWithoutMention(t *testing.T) {
	f := newDispatchFixture("boss")
	r := NewRouter("/c")

	route, _ := r.Route(groupMsg("just chatting", false, "Bot"))
	if replies, _ := f.dispatcher.Dispatch(context.Background(), route); len(replies) != 0 {
		t.Fatalf("replies = %+v, want none", replies)
	}

	route, _ = r.Route(groupMsg("/chatgpt hi", false, "Bot"))
	f.dispatcher.Dispatch(context.Background(), route)
	if calls := f.chat.calls(); len(calls) != 1 || calls[0] != "hi" {
		t.Fatalf("chat calls = %q", calls)
	}
}

func TestDispatchAdminRoomByAlias(t *testing.T) {
	f := newDispatchFixture("room-alias")
	r := NewRouter("/c")

	route, _ := r.Route(groupMsg("anything", false, "Bot"))
	f.dispatcher.Dispatch(context.Background(), route)
	if calls := f.chat.calls(); len(calls) != 1 || calls[0] != "anything" {
		t.Fatalf("chat calls = %q, want admin room free text", calls)
	}
}

func TestDispatchFallbackOutcome(t *testing.T) {
	f := newDispatchFixture("boss")
	f.chat.result = &tools.Result{Text: "fallback", Err: errors.New("boom")}

	replies, outcome := f.dispatcher.Dispatch(context.Background(), directRoute("/c hi", "x"))
	if len(replies) != 1 || replies[0].Content != "fallback" {
		t.Fatalf("replies = %+v", replies)
	}
	if outcome.Kind != OutcomeFallback || outcome.Err == nil {
		t.Fatalf("outcome = %+v, want fallback with cause", outcome)
	}
}
