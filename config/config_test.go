package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"drive-in/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"audio.source", cfg.Audio.Source, "http"},
		{"audio.http_addr", cfg.Audio.HTTPAddr, ":8080"},
		{"audio.sample_rate", cfg.Audio.SampleRate, 16000},
		{"menu.path", cfg.Menu.Path, "menu.csv"},
		{"openai.language", cfg.OpenAI.Language, "en"},
		{"openai.model", cfg.OpenAI.Model, "gpt-4-turbo"},
		{"chat.provider", cfg.Chat.Provider, "openai"},
		{"pushover.title", cfg.Pushover.Title, "Drive-In"},
		{"metrics.service_name", cfg.Metrics.ServiceName, "drive-in"},
		{"log.level", cfg.Log.Level, "info"},
		{"log.format", cfg.Log.Format, "text"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	timeout, err := cfg.ChatTimeout()
	if err != nil || timeout != 20*time.Second {
		t.Errorf("ChatTimeout() = %v, %v", timeout, err)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("DRIVE_IN_TEST_OPENAI_KEY", "sk-test")

	cfg, err := config.Parse([]byte(`
openai:
  api_key: ${DRIVE_IN_TEST_OPENAI_KEY}
chat:
  provider: anthropic
  timeout: 5s
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.OpenAI.APIKey)
	}
	if cfg.Chat.Provider != "anthropic" {
		t.Errorf("provider = %q", cfg.Chat.Provider)
	}
	if d, _ := cfg.ChatTimeout(); d != 5*time.Second {
		t.Errorf("timeout = %v", d)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown source", "audio:\n  source: carrier-pigeon\n", "unknown audio source"},
		{"unknown provider", "chat:\n  provider: llama\n", "unknown chat provider"},
		{"bad timeout", "chat:\n  timeout: soon\n", "chat.timeout"},
		{"bad reply timeout", "audio:\n  reply_timeout: never\n", "audio.reply_timeout"},
		{"kitchen without url", "kitchen:\n  enabled: true\n", "kitchen.url"},
		{"archive without url", "archive:\n  enabled: true\n", "archive.database_url"},
		{"malformed yaml", "audio: [", "parsing config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_WithEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(envPath, []byte("DRIVE_IN_TEST_PUSHOVER_TOKEN=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfgPath, []byte("pushover:\n  token: ${DRIVE_IN_TEST_PUSHOVER_TOKEN}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("DRIVE_IN_TEST_PUSHOVER_TOKEN") })

	cfg, err := config.Load(cfgPath, envPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pushover.Token != "from-dotenv" {
		t.Errorf("token = %q", cfg.Pushover.Token)
	}
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("log:\n  level: debug\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(cfgPath, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q", cfg.Log.Level)
	}
}

func TestLoad_MissingConfig(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), filepath.Join(t.TempDir(), "none.env")); err == nil {
		t.Fatal("expected error")
	}
}
