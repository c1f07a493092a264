package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readEntries(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer f.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestFileLoggingRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "picochat.log")
	prev := GetLevel()
	defer SetLevel(prev)

	SetLevel(WARN)
	if err := EnableFileLogging(path); err != nil {
		t.Fatalf("EnableFileLogging() error = %v", err)
	}

	InfoCF("test", "dropped", map[string]interface{}{"n": 1})
	WarnCF("test", "kept", map[string]interface{}{"chat_id": "room-1"})
	DisableFileLogging()

	var kept []map[string]interface{}
	for _, e := range readEntries(t, path) {
		if e["msg"] == "dropped" {
			t.Fatalf("info entry written at WARN level: %v", e)
		}
		if e["msg"] == "kept" {
			kept = append(kept, e)
		}
	}
	if len(kept) != 1 {
		t.Fatalf("kept entries = %d, want 1", len(kept))
	}
	if kept[0]["component"] != "test" {
		t.Fatalf("component = %v, want %q", kept[0]["component"], "test")
	}
	if kept[0]["chat_id"] != "room-1" {
		t.Fatalf("chat_id = %v, want %q", kept[0]["chat_id"], "room-1")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug": DEBUG,
		"INFO":  INFO,
		" warn": WARN,
		"Error": ERROR,
	}
	for in, want := range tests {
		got, ok := ParseLevel(in)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseLevel("verbose"); ok {
		t.Fatal("ParseLevel(verbose) ok = true, want false")
	}
}
