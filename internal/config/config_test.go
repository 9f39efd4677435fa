package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("POLABOT_TEST_TOKEN", "secret123")
	defer os.Unsetenv("POLABOT_TEST_TOKEN")

	cases := []struct {
		in, want string
	}{
		{"${POLABOT_TEST_TOKEN}", "secret123"},
		{"prefix-${POLABOT_TEST_TOKEN}-suffix", "prefix-secret123-suffix"},
		{"${POLABOT_TEST_UNSET:-fallback}", "fallback"},
		{"${POLABOT_TEST_UNSET}", "${POLABOT_TEST_UNSET}"},
		{"no vars here", "no vars here"},
	}
	for _, tc := range cases {
		if got := ExpandEnvVars(tc.in); got != tc.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoad_AppliesDefaultsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"general": {"logLevel": "debug"},
		"store": {"backend": "sqlite", "dbPath": "/tmp/test.db"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.LogLevel != "debug" {
		t.Errorf("logLevel = %q", cfg.General.LogLevel)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.Store.Backend)
	}
	// Untouched sections keep their defaults.
	if cfg.Gateway.Port != 8080 {
		t.Errorf("gateway port = %d, want default 8080", cfg.Gateway.Port)
	}
	if cfg.Engine.MaxConcurrentEvents != 5 {
		t.Errorf("maxConcurrentEvents = %d, want default 5", cfg.Engine.MaxConcurrentEvents)
	}
}

func TestLoad_EnvExpansionInFile(t *testing.T) {
	os.Setenv("POLABOT_TEST_VERIFY", "tkn")
	defer os.Unsetenv("POLABOT_TEST_VERIFY")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"channels": {
			"messenger": {"enabled": true, "verifyToken": "${POLABOT_TEST_VERIFY}", "accessToken": "x"}
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channels.Messenger.VerifyToken != "tkn" {
		t.Errorf("verifyToken = %q", cfg.Channels.Messenger.VerifyToken)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"bad port", func(c *Config) { c.Gateway.Port = 70000 }},
		{"zero concurrency", func(c *Config) { c.Engine.MaxConcurrentEvents = 0 }},
		{"telegram without token", func(c *Config) { c.Channels.Telegram.Enabled = true }},
		{"messenger without verify token", func(c *Config) { c.Channels.Messenger.Enabled = true }},
	}
	for _, tc := range cases {
		cfg := Defaults()
		tc.mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Defaults()
	cfg.General.LogLevel = "warn"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.General.LogLevel != "warn" {
		t.Errorf("logLevel = %q", got.General.LogLevel)
	}
}
