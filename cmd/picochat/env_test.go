package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")

	content := `
# comment
PICOCHAT_TEST_ENV_A=alpha
export PICOCHAT_TEST_ENV_B = bravo
PICOCHAT_TEST_ENV_C="hello world"
PICOCHAT_TEST_ENV_D='single # keep'
PICOCHAT_TEST_ENV_E=value # inline comment
PICOCHAT_TEST_ENV_F="line1\nline2"
PICOCHAT_TEST_ENV_G="quoted with comment" # comment
`
	if err := os.WriteFile(envPath, []byte(content), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	keys := []string{"A", "B", "C", "D", "E", "F", "G"}
	for _, k := range keys {
		os.Unsetenv("PICOCHAT_TEST_ENV_" + k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv("PICOCHAT_TEST_ENV_" + k)
		}
	})

	if err := loadEnvFile(envPath); err != nil {
		t.Fatalf("loadEnvFile() error = %v", err)
	}

	tests := map[string]string{
		"PICOCHAT_TEST_ENV_A": "alpha",
		"PICOCHAT_TEST_ENV_B": "bravo",
		"PICOCHAT_TEST_ENV_C": "hello world",
		"PICOCHAT_TEST_ENV_D": "single # keep",
		"PICOCHAT_TEST_ENV_E": "value",
		"PICOCHAT_TEST_ENV_F": "line1\nline2",
		"PICOCHAT_TEST_ENV_G": "quoted with comment",
	}

	for k, want := range tests {
		got := os.Getenv(k)
		if got != want {
			t.Fatalf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestLoadEnvFile_DoesNotOverrideExisting(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")

	if err := os.WriteFile(envPath, []byte("PICOCHAT_TEST_ENV_OVERRIDE=from_file\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("PICOCHAT_TEST_ENV_OVERRIDE", "from_process")

	if err := loadEnvFile(envPath); err != nil {
		t.Fatalf("loadEnvFile() error = %v", err)
	}

	if got := os.Getenv("PICOCHAT_TEST_ENV_OVERRIDE"); got != "from_process" {
		t.Fatalf("PICOCHAT_TEST_ENV_OVERRIDE = %q, want %q", got, "from_process")
	}
}

func TestLoadEnvFile_InvalidLine(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")

	if err := os.WriteFile(envPath, []byte("bad-key=value\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := loadEnvFile(envPath); err == nil {
		t.Fatal("expected error for invalid .env line, got nil")
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("loadEnvFile() error = %v, want nil for missing file", err)
	}
}
