package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFlexibleStringSliceAcceptsNumbers(t *testing.T) {
	var got FlexibleStringSlice
	if err := json.Unmarshal([]byte(`["alice", 12345, "67"]`), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := []string{"alice", "12345", "67"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadConfigMissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("PICOCHAT_BOT_ADMIN", "ops-room")
	t.Setenv("PICOCHAT_SESSION_MAX_ENTRIES", "42")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Bot.Admin != "ops-room" {
		t.Fatalf("Bot.Admin = %q, want %q", cfg.Bot.Admin, "ops-room")
	}
	if cfg.Session.MaxEntries != 42 {
		t.Fatalf("Session.MaxEntries = %d, want 42", cfg.Session.MaxEntries)
	}
	if cfg.CompletionTimeout() != 120*time.Second {
		t.Fatalf("CompletionTimeout() = %v, want 120s", cfg.CompletionTimeout())
	}
	if len(cfg.Bot.ChatCommands) != 2 || cfg.Bot.StickerCommands[0] != "/表情包" {
		t.Fatalf("unexpected default commands: %v %v", cfg.Bot.ChatCommands, cfg.Bot.StickerCommands)
	}
}

func TestLoadConfigFileThenEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "bot": {"admin": "file-admin", "max_concurrent": 4},
  "providers": {"openai": {"api_key": "sk-file", "model": "gpt-4o-mini"}},
  "channels": {"onebot": {"enabled": true, "allow_groups": [123, "456"]}}
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PICOCHAT_PROVIDERS_OPENAI_MODEL", "gpt-4o")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Bot.Admin != "file-admin" {
		t.Fatalf("Bot.Admin = %q, want %q", cfg.Bot.Admin, "file-admin")
	}
	if cfg.Bot.MaxConcurrent != 4 {
		t.Fatalf("Bot.MaxConcurrent = %d, want 4", cfg.Bot.MaxConcurrent)
	}
	if cfg.Providers.OpenAI.Model != "gpt-4o" {
		t.Fatalf("Model = %q, want env override %q", cfg.Providers.OpenAI.Model, "gpt-4o")
	}
	if cfg.GetAPIKey() != "sk-file" {
		t.Fatalf("GetAPIKey() = %q, want %q", cfg.GetAPIKey(), "sk-file")
	}
	if len(cfg.Channels.OneBot.AllowGroups) != 2 || cfg.Channels.OneBot.AllowGroups[0] != "123" {
		t.Fatalf("AllowGroups = %v", cfg.Channels.OneBot.AllowGroups)
	}
	// untouched defaults survive a partial file
	if cfg.Providers.OpenAI.MaxModelTokens != 4096 {
		t.Fatalf("MaxModelTokens = %d, want 4096", cfg.Providers.OpenAI.MaxModelTokens)
	}
}

func TestLegacyEnvNames(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("apiBaseUrl", "https://proxy.example.com/v1")
	t.Setenv("ADMIN", "boss")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.GetAPIKey() != "sk-legacy" {
		t.Fatalf("GetAPIKey() = %q, want %q", cfg.GetAPIKey(), "sk-legacy")
	}
	if cfg.GetAPIBase() != "https://proxy.example.com/v1" {
		t.Fatalf("GetAPIBase() = %q", cfg.GetAPIBase())
	}
	if cfg.Bot.Admin != "boss" {
		t.Fatalf("Bot.Admin = %q, want %q", cfg.Bot.Admin, "boss")
	}
}

func TestLegacyEnvDoesNotOverrideExplicitKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("PICOCHAT_PROVIDERS_OPENAI_API_KEY", "sk-new")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.GetAPIKey() != "sk-new" {
		t.Fatalf("GetAPIKey() = %q, want %q", cfg.GetAPIKey(), "sk-new")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Bot.Admin = "saved"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Bot.Admin != "saved" {
		t.Fatalf("Bot.Admin = %q, want %q", loaded.Bot.Admin, "saved")
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/.picochat/x.db"); got != home+"/.picochat/x.db" {
		t.Fatalf("ExpandHome() = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("ExpandHome() = %q", got)
	}
}
