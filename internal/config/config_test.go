package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("discord_token: file-token\nantispam:\n  message_limit: 7\n  duplicate_limit: 0\nchannels:\n  alert: \"111\"\ndocuments:\n  driver: PG\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("ALERT_CHANNEL_ID", "222")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "file-token" {
		t.Fatalf("expected file token, got %q", cfg.DiscordToken)
	}
	if cfg.AntiSpam.MessageLimit != 7 {
		t.Fatalf("expected message limit 7, got %d", cfg.AntiSpam.MessageLimit)
	}
	if cfg.AntiSpam.DuplicateLimit != 20 {
		t.Fatalf("expected duplicate limit default, got %d", cfg.AntiSpam.DuplicateLimit)
	}
	if cfg.Channels.Alert != "222" {
		t.Fatalf("expected env override, got %q", cfg.Channels.Alert)
	}
	if cfg.Documents.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.Documents.Driver)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FLAG_A", "yes")
	t.Setenv("FLAG_B", "off")
	if !envBool("FLAG_A", false) {
		t.Fatalf("expected true")
	}
	if envBool("FLAG_B", true) {
		t.Fatalf("expected false")
	}
	if !envBool("FLAG_UNSET", true) {
		t.Fatalf("expected fallback")
	}
}
