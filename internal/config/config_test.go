package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

const validConfig = `
reddit:
  client_id: "test_client"
  client_secret: "test_secret"
  username: "test_bot"
  password: "hunter2"
  subreddits:
    - CryptoCurrency
    - CryptoMarkets

coingecko:
  limit: 1000

bot:
  action_cooldown: 5s
  start_interval: 10s

telegram:
  enabled: false

storage:
  db_path: "./data/test.db"

logging:
  level: "info"
  format: "json"
`

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Reddit.Username != "test_bot" {
		t.Errorf("got username %q, want %q", cfg.Reddit.Username, "test_bot")
	}
	if len(cfg.Reddit.Subreddits) != 2 {
		t.Errorf("got %d subreddits, want 2", len(cfg.Reddit.Subreddits))
	}
	if cfg.Bot.ActionCooldown != 5*time.Second {
		t.Errorf("got action cooldown %v, want 5s", cfg.Bot.ActionCooldown)
	}
	if cfg.Bot.StartInterval != 10*time.Second {
		t.Errorf("got start interval %v, want 10s", cfg.Bot.StartInterval)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Reddit.APIURL != "https://oauth.reddit.com" {
		t.Errorf("got api_url %q", cfg.Reddit.APIURL)
	}
	if cfg.Coingecko.RefreshTTL != time.Hour {
		t.Errorf("got refresh_ttl %v, want 1h", cfg.Coingecko.RefreshTTL)
	}
	if cfg.Bot.MaxSubmissionAge != 14*24*time.Hour {
		t.Errorf("got max_submission_age %v, want 336h", cfg.Bot.MaxSubmissionAge)
	}
	if len(cfg.Bot.TriggerPhrases) != 2 {
		t.Errorf("got %d trigger phrases, want 2", len(cfg.Bot.TriggerPhrases))
	}
	if cfg.Bot.StreamSubmissions {
		t.Error("stream_submissions should default to false")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing credentials", func(c *Config) { c.Reddit.ClientID = "" }},
		{"missing subreddits", func(c *Config) { c.Reddit.Subreddits = nil }},
		{"zero coingecko limit", func(c *Config) { c.Coingecko.Limit = 0 }},
		{"no trigger phrases", func(c *Config) { c.Bot.TriggerPhrases = nil }},
		{"sub-second cooldown", func(c *Config) { c.Bot.ActionCooldown = 100 * time.Millisecond }},
		{"telegram enabled without token", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = ""
		}},
		{"empty db path", func(c *Config) { c.Storage.DBPath = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, validConfig)
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplyTestMode(t *testing.T) {
	path := writeConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg.ApplyTestMode()

	if cfg.Storage.DBPath != cfg.Storage.TestDBPath {
		t.Errorf("db path not switched: got %q", cfg.Storage.DBPath)
	}
	if len(cfg.Reddit.Subreddits) != 1 || cfg.Reddit.Subreddits[0] != "test" {
		t.Errorf("subreddits not switched: got %v", cfg.Reddit.Subreddits)
	}
}
