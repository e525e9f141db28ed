package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("DAILY_MESSAGE_LIMIT", "3")
	t.Setenv("SESSION_BACKEND", "memory")

	path := writeConfig(t, `
port: "8080"
logLevel: "info"
geminiAPIKey: "file-key"
dailyMessageLimit: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.GeminiAPIKey != "env-key" {
		t.Fatalf("geminiAPIKey = %q, want the env override", cfg.GeminiAPIKey)
	}
	if cfg.DailyMessageLimit != 3 {
		t.Fatalf("dailyMessageLimit = %d, want 3", cfg.DailyMessageLimit)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SessionBackend != "memory" {
		t.Fatalf("sessionBackend = %q, want memory", cfg.SessionBackend)
	}
	if cfg.DailyMessageLimit != 10 || cfg.HistoryLimit != 20 || cfg.ContextLimit != 5 {
		t.Fatalf("limits = %d/%d/%d, want 10/20/5", cfg.DailyMessageLimit, cfg.HistoryLimit, cfg.ContextLimit)
	}
}

func TestValidateConfigRequiresPort(t *testing.T) {
	path := writeConfig(t, `
logLevel: "info"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "port") {
		t.Fatalf("err = %v, want a port error", err)
	}
}

func TestValidateConfigJWTSecretLength(t *testing.T) {
	cfg := FileConfig{Port: "8080", SessionBackend: "jwt", SessionSecret: "short"}
	if err := validateConfig(cfg); err == nil {
		t.Fatal("validateConfig() expected error for a short jwt secret")
	}
	cfg.SessionSecret = strings.Repeat("s", 32)
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("validateConfig() = %v, want nil for a 32-byte secret", err)
	}
}

func TestValidateConfigRejectsUnknownBackend(t *testing.T) {
	cfg := FileConfig{Port: "8080", SessionBackend: "cookies"}
	if err := validateConfig(cfg); err == nil {
		t.Fatal("validateConfig() expected error for an unknown session backend")
	}
}

func TestValidateConfigRateLimitNeedsRedis(t *testing.T) {
	cfg := FileConfig{Port: "8080", SessionBackend: "memory", AuthRatePerMinute: 30}
	if err := validateConfig(cfg); err == nil {
		t.Fatal("validateConfig() expected error when rate limiting is on without redis")
	}
}
