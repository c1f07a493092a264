package channels

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/config"
)

func TestOneBotHandleMessage_GroupAllowedByDefault(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch, err := NewOneBotChannel(config.OneBotConfig{}, msgBus)
	if err != nil {
		t.Fatalf("NewOneBotChannel() error = %v", err)
	}

	ch.handleMessage(&oneBotEvent{
		MessageType:    "group",
		MessageID:      "m1",
		UserID:         2002,
		GroupID:        1001,
		Content:        "hello",
		IsBotMentioned: true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected inbound message, got none")
	}
	if msg.ChatID != "group:1001" {
		t.Fatalf("chat_id = %q, want %q", msg.ChatID, "group:1001")
	}
	if !msg.IsGroup() || msg.Meta(bus.MetaMentioned) != "true" {
		t.Fatalf("metadata = %+v", msg.Metadata)
	}
}

func TestOneBotHandleMessage_GroupNotAllowed(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch, err := NewOneBotChannel(config.OneBotConfig{
		AllowGroups: config.FlexibleStringSlice{"1001"},
	}, msgBus)
	if err != nil {
		t.Fatalf("NewOneBotChannel() error = %v", err)
	}

	ch.handleMessage(&oneBotEvent{
		MessageType: "group",
		MessageID:   "m2",
		UserID:      2002,
		GroupID:     1002,
		Content:     "hello",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if msg, ok := msgBus.ConsumeInbound(ctx); ok {
		t.Fatalf("unexpected inbound message: %+v", msg)
	}
}

func TestOneBotHandleMessage_GroupAllowedWithPrefixFormat(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch, err := NewOneBotChannel(config.OneBotConfig{
		AllowGroups: config.FlexibleStringSlice{"group:1001"},
	}, msgBus)
	if err != nil {
		t.Fatalf("NewOneBotChannel() error = %v", err)
	}

	ch.handleMessage(&oneBotEvent{
		MessageType: "group",
		MessageID:   "m3",
		UserID:      2002,
		GroupID:     1001,
		Content:     "/c hello",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected inbound message, got none")
	}
	if msg.Meta(bus.MetaMentioned) != "" {
		t.Fatal("unmentioned message flagged as mentioned")
	}
}

func TestOneBotHandleMessage_DuplicateDropped(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch, _ := NewOneBotChannel(config.OneBotConfig{}, msgBus)

	evt := &oneBotEvent{MessageType: "private", MessageID: "dup", UserID: 7, Content: "hi"}
	ch.handleMessage(evt)
	ch.handleMessage(evt)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok || msg.ChatID != "private:7" || msg.Meta(bus.MetaTargetAlias) != "7" {
		t.Fatalf("first message = %+v, %v", msg, ok)
	}
	if msg, ok := msgBus.ConsumeInbound(ctx); ok {
		t.Fatalf("duplicate delivered: %+v", msg)
	}
}

func TestOneBotHandleRawEvent_NonTextKind(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch, _ := NewOneBotChannel(config.OneBotConfig{}, msgBus)

	ch.handleRawEvent(&oneBotRawEvent{
		PostType:    "message",
		MessageType: "private",
		MessageID:   json.RawMessage(`"img-1"`),
		UserID:      json.RawMessage(`2002`),
		Message:     json.RawMessage(`[{"type":"image","data":{"file":"a.jpg"}}]`),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected inbound message")
	}
	if msg.IsText() {
		t.Fatalf("image message published as text: %+v", msg.Metadata)
	}
}

func TestOneBotHandleRawEvent_TextWithImageIsNotText(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch, _ := NewOneBotChannel(config.OneBotConfig{}, msgBus)

	ch.handleRawEvent(&oneBotRawEvent{
		PostType:    "message",
		MessageType: "private",
		MessageID:   json.RawMessage(`"mixed-1"`),
		UserID:      json.RawMessage(`2002`),
		Message: json.RawMessage(`[
			{"type":"text","data":{"text":"/c 这是什么"}},
			{"type":"image","data":{"file":"a.jpg"}}
		]`),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected inbound message")
	}
	if msg.IsText() {
		t.Fatalf("text with image published as text: %+v", msg.Metadata)
	}
	if msg.Content != "/c 这是什么" {
		t.Fatalf("content = %q", msg.Content)
	}
}

func TestOneBotHandleRequest_AcceptsGroupInvite(t *testing.T) {
	ch, _ := NewOneBotChannel(config.OneBotConfig{AcceptGroupInvite: true}, bus.NewMessageBus())

	var gotFlag string
	ch.approve = func(flag, subType string) error {
		gotFlag = flag
		return nil
	}

	ch.handleRawEvent(&oneBotRawEvent{PostType: "request", RequestType: "group", SubType: "invite", Flag: "f-1"})
	if gotFlag != "f-1" {
		t.Fatalf("approve flag = %q, want f-1", gotFlag)
	}

	gotFlag = ""
	ch.handleRawEvent(&oneBotRawEvent{PostType: "request", RequestType: "group", SubType: "add", Flag: "f-2"})
	if gotFlag != "" {
		t.Fatal("join request approved; only invites are accepted")
	}
}

func TestOneBotHandleRequest_InviteIgnoredWhenDisabled(t *testing.T) {
	ch, _ := NewOneBotChannel(config.OneBotConfig{}, bus.NewMessageBus())

	called := false
	ch.approve = func(flag, subType string) error {
		called = true
		return errors.New("should not be called")
	}
	ch.handleRawEvent(&oneBotRawEvent{PostType: "request", RequestType: "group", SubType: "invite", Flag: "f"})
	if called {
		t.Fatal("invite accepted while disabled")
	}
}
