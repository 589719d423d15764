package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	logger := zerolog.Nop()

	cfg, resolved, err := Load(&logger, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	def := Default()
	if cfg.Talk.Warmup != def.Talk.Warmup || cfg.Telegram.SendConcurrency != def.Telegram.SendConcurrency {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := strings.Join([]string{
		"log_level: debug",
		"talk:",
		"  username: bridge",
		"  warmup: 5s",
		"  ignore_usernames: [musicbot, recorder]",
		"telegram:",
		"  token: from-file",
		"  admin_ids: [11, 22]",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TTBRIDGE_TELEGRAM_TOKEN", "from-env")
	t.Setenv("TTBRIDGE_HTTP_ADDR", ":9999")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Fatalf("log level %q", cfg.LogLevel)
	}
	if cfg.Talk.Username != "bridge" || cfg.Talk.Warmup != 5*time.Second {
		t.Fatalf("talk section not read: %+v", cfg.Talk)
	}
	if len(cfg.Talk.IgnoreUsernames) != 2 || cfg.Talk.IgnoreUsernames[1] != "recorder" {
		t.Fatalf("ignore list %v", cfg.Talk.IgnoreUsernames)
	}
	if len(cfg.Telegram.AdminIDs) != 2 || cfg.Telegram.AdminIDs[0] != 11 {
		t.Fatalf("admin ids %v", cfg.Telegram.AdminIDs)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("env did not override token: %q", cfg.Telegram.Token)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Fatalf("env did not override nested default: %q", cfg.HTTP.Addr)
	}
	if cfg.Talk.ReconnectMax != Default().Talk.ReconnectMax {
		t.Fatalf("untouched default lost: %s", cfg.Talk.ReconnectMax)
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Talk.Username = "bridge"
	valid.Telegram.Token = "token"

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: "telegram.token"},
		{name: "missing username", mutate: func(c *Config) { c.Talk.Username = "" }, wantErr: "talk.username"},
		{name: "inverted backoff", mutate: func(c *Config) { c.Talk.ReconnectMax = time.Second }, wantErr: "reconnect_min"},
		{name: "command buffer below poll batch", mutate: func(c *Config) { c.Talk.CommandBuffer = 4 }, wantErr: "talk.command_buffer"},
		{name: "event buffer below poll batch", mutate: func(c *Config) { c.Talk.EventBuffer = 4 }, wantErr: "talk.event_buffer"},
		{name: "buffers equal to poll batch", mutate: func(c *Config) {
			c.Talk.CommandBuffer = c.Talk.PollBatch
			c.Talk.EventBuffer = c.Talk.PollBatch
		}},
		{name: "short jwt secret", mutate: func(c *Config) {
			c.HTTP.AdminPasswordHash = "hash"
			c.HTTP.JWTSecret = "short"
		}, wantErr: "jwt_secret"},
		{name: "webhook without http", mutate: func(c *Config) {
			c.Telegram.WebhookURL = "https://example.org/telegram/webhook"
			c.HTTP.Enabled = false
		}, wantErr: "webhook_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
