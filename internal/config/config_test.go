package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 3100 {
		t.Errorf("addr defaults = %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.DatabasePath != "spacenote.db" {
		t.Errorf("database_path = %q", cfg.DatabasePath)
	}
	if cfg.MaxUploadSize != 500*1024*1024 {
		t.Errorf("max_upload_size = %d", cfg.MaxUploadSize)
	}
	if cfg.ImageWorkers != 4 {
		t.Errorf("image_workers = %d", cfg.ImageWorkers)
	}
	if cfg.ShutdownGrace != 10*time.Second {
		t.Errorf("shutdown_grace = %v", cfg.ShutdownGrace)
	}
	if cfg.Debug {
		t.Error("debug defaults on")
	}
	if cfg.Addr() != "0.0.0.0:3100" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestEnvironmentBinding(t *testing.T) {
	t.Setenv("SPACENOTE_PORT", "8080")
	t.Setenv("SPACENOTE_SITE_URL", "https://notes.example.com")
	t.Setenv("SPACENOTE_TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("SPACENOTE_DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d", cfg.Port)
	}
	if cfg.SiteURL != "https://notes.example.com" {
		t.Errorf("site_url = %q", cfg.SiteURL)
	}
	if cfg.TelegramBotToken != "123:abc" {
		t.Errorf("telegram_bot_token = %q", cfg.TelegramBotToken)
	}
	if !cfg.Debug {
		t.Error("debug not bound")
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spacenote.yaml")
	content := "port: 4000\nhost: 127.0.0.1\nimage_workers: 2\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SPACENOTE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Port != 4000 || cfg.Host != "127.0.0.1" || cfg.ImageWorkers != 2 {
		t.Errorf("config file not applied: %+v", cfg)
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spacenote.yaml")
	if err := os.WriteFile(path, []byte("port: 4000\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SPACENOTE_CONFIG", path)
	t.Setenv("SPACENOTE_PORT", "5000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Port != 5000 {
		t.Errorf("port = %d, want env override 5000", cfg.Port)
	}
}

func TestInvalidPort(t *testing.T) {
	t.Setenv("SPACENOTE_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Error("Load() accepted port 70000")
	}
}
