package main

import (
	"strings"
	"testing"
	"time"

	"github.com/sipeed/picochat/pkg/bus"
	"github.com/sipeed/picochat/pkg/cron"
)

func TestParseCronAddArgs(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	req, err := parseCronAddArgs([]string{
		"-n", "morning", "-m", "早上好", "-c", "0 9 * * *", "--tz", "Asia/Shanghai",
		"--channel", "wechat", "--to", "family",
	}, now)
	if err != nil {
		t.Fatalf("parseCronAddArgs() error = %v", err)
	}
	if req.Schedule.Kind != cron.ScheduleCron || req.Schedule.TZ != "Asia/Shanghai" {
		t.Fatalf("schedule = %+v", req.Schedule)
	}
	if req.Payload.Kind != cron.PayloadAnnounce || req.Payload.To != "family" {
		t.Fatalf("payload = %+v", req.Payload)
	}

	req, err = parseCronAddArgs([]string{"-n", "gc", "-k", "sweep", "--idle", "120", "-e", "3600"}, now)
	if err != nil {
		t.Fatalf("sweep error = %v", err)
	}
	if req.Payload.Kind != cron.PayloadSweepSessions || req.Payload.IdleMinutes != 120 || *req.Schedule.EveryMS != 3600_000 {
		t.Fatalf("sweep = %+v %+v", req.Payload, req.Schedule)
	}

	req, err = parseCronAddArgs([]string{"-n", "once", "-k", "prompt", "-m", "讲个笑话", "-a", "600", "--channel", "onebot", "--to", "group:42"}, now)
	if err != nil {
		t.Fatalf("at error = %v", err)
	}
	if *req.Schedule.AtMS != now.Add(10*time.Minute).UnixMilli() {
		t.Fatalf("at = %d", *req.Schedule.AtMS)
	}
}

func TestParseCronAddArgsErrors(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no name", []string{"-e", "60"}, "--name"},
		{"no schedule", []string{"-n", "x", "-m", "hi", "--channel", "wechat", "--to", "a"}, "exactly one"},
		{"two schedules", []string{"-n", "x", "-e", "60", "-c", "* * * * *"}, "exactly one"},
		{"past at", []string{"-n", "x", "-a", "2020-01-01T00:00:00Z"}, "in the past"},
		{"bad every", []string{"-n", "x", "-e", "soon"}, "--every"},
		{"missing target", []string{"-n", "x", "-m", "hi", "-e", "60"}, "channel and a target"},
		{"unknown flag", []string{"-n", "x", "--deliver"}, "unknown option"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCronAddArgs(tt.args, now)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestFormatReply(t *testing.T) {
	got := formatReply(bus.OutboundMessage{
		Content:    "看这个",
		Attachment: &bus.Attachment{Name: "cat.gif", URL: "https://img.example.com/cat.gif"},
	})
	want := "看这个\n[image cat.gif] https://img.example.com/cat.gif"
	if got != want {
		t.Fatalf("formatReply() = %q, want %q", got, want)
	}
}
