package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/counsel/llm"
)

// clearEnv isolates a test from provider variables set on the host.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_ORG_ID",
		"OLLAMA_HOST", "OLLAMA_MODEL", "COUNSEL_GENERATION_TIMEOUT", "COUNSEL_DB_PATH", "REDIS_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.SQLite.Path != "counsel.db" {
		t.Errorf("storage defaults = %+v", cfg.Storage)
	}
	if cfg.Generation.Timeout != 30*time.Second || cfg.Generation.Retries != 1 {
		t.Errorf("generation defaults = %+v", cfg.Generation)
	}
	if cfg.Outreach.Enabled {
		t.Errorf("outreach should be disabled by default")
	}
	if cfg.RateLimit.Disabled {
		t.Errorf("rate limiting should be enabled by default")
	}
	if cfg.Crisis.ShortCircuit {
		t.Errorf("short circuit should be off by default")
	}
	if cfg.Server.Socket != "/tmp/counseld.sock" {
		t.Errorf("Socket = %q", cfg.Server.Socket)
	}
}

func TestLoadServerConfig_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  tcp: localhost:50051
llm_providers: [ollama, anthropic]
llm:
  - provider: ollama
    model: qwen2.5:7b
    temperature: 0.4
generation:
  timeout: 10s
  retries: 0
storage:
  driver: redis
  redis:
    addr: redis:6379
crisis:
  short_circuit: true
  hotlines:
    en:
      heading: "If you are in danger:"
      closing: "You are not alone."
      entries:
        - name: Lifeline
          contact: "988"
outreach:
  enabled: true
  schedule: "@every 30m"
rate_limit:
  disabled: true
`)

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Server.TCP != "localhost:50051" || cfg.Server.Socket != "/tmp/counseld.sock" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Generation.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v", cfg.Generation.Timeout)
	}
	// Zero values in the file do not override defaults.
	if cfg.Generation.Retries != 1 {
		t.Errorf("Retries = %d, want default 1", cfg.Generation.Retries)
	}
	if cfg.Generation.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d", cfg.Generation.MaxTokens)
	}
	if cfg.Storage.Driver != DriverRedis || cfg.Storage.Redis.Addr != "redis:6379" || cfg.Storage.Redis.Prefix != "counsel" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if !cfg.Crisis.ShortCircuit || !cfg.Outreach.Enabled || !cfg.RateLimit.Disabled {
		t.Errorf("flags not applied: crisis %+v outreach %+v rate %+v", cfg.Crisis, cfg.Outreach, cfg.RateLimit)
	}
	if cfg.Outreach.AbsenceDays != 7 {
		t.Errorf("AbsenceDays = %d, want default 7", cfg.Outreach.AbsenceDays)
	}

	prefs := cfg.Preferences()
	if len(prefs) != 1 || prefs[0].Provider != llm.ProviderOllama || prefs[0].Model != "qwen2.5:7b" ||
		prefs[0].Temperature == nil || *prefs[0].Temperature != 0.4 {
		t.Errorf("Preferences = %+v", prefs)
	}

	dir, err := cfg.Hotlines()
	if err != nil {
		t.Fatalf("Hotlines: %v", err)
	}
	if got := dir.Render("en"); !strings.Contains(got, "988") {
		t.Errorf("en hotlines not applied: %q", got)
	}
	if got := dir.Render("ja"); !strings.Contains(got, "0570-064-556") {
		t.Errorf("built-in ja hotlines lost: %q", got)
	}
}

func TestLoadServerConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OLLAMA_HOST", "http://gpu:11434")
	t.Setenv("OPENAI_MODEL", "gpt-4.1")
	t.Setenv("COUNSEL_GENERATION_TIMEOUT", "45s")
	t.Setenv("COUNSEL_DB_PATH", "/var/lib/counsel.db")

	path := writeConfig(t, "anthropic:\n  api_key: from-file\n")
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-test" {
		t.Errorf("APIKey = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Ollama.Host != "http://gpu:11434" || cfg.OpenAI.Model != "gpt-4.1" {
		t.Errorf("provider env not applied: %+v %+v", cfg.Ollama, cfg.OpenAI)
	}
	if cfg.Generation.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v", cfg.Generation.Timeout)
	}
	if cfg.Storage.SQLite.Path != "/var/lib/counsel.db" {
		t.Errorf("Path = %q", cfg.Storage.SQLite.Path)
	}

	pc := cfg.ProviderConfig()
	if pc.AnthropicAPIKey != "sk-ant-test" || pc.OllamaHost != "http://gpu:11434" {
		t.Errorf("ProviderConfig = %+v", pc)
	}
}

func TestLoadServerConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{name: "bad driver", body: "storage:\n  driver: postgres\n", want: "Driver"},
		{name: "bad provider", body: "llm_providers: [bard]\n", want: "LLMProviders"},
		{name: "too many retries", body: "generation:\n  retries: 5\n", want: "Retries"},
		{name: "bad yaml", body: "server: [", want: "parse"},
		{name: "bad timeout env", env: map[string]string{"COUNSEL_GENERATION_TIMEOUT": "soon"}, want: "COUNSEL_GENERATION_TIMEOUT"},
		{name: "empty hotline", body: "crisis:\n  hotlines:\n    en:\n      heading: x\n", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadServerConfig(writeConfig(t, tt.body))
			if tt.want == "" {
				// Hotline blocks are validated when the directory is built.
				if err != nil {
					t.Fatalf("LoadServerConfig: %v", err)
				}
				if _, err := cfg.Hotlines(); err == nil {
					t.Errorf("expected hotline validation error")
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestCounselConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Crisis.ShortCircuit = true
	cfg.Sessions.IdleWindow = time.Minute

	cc := cfg.CounselConfig()
	if !cc.ShortCircuit || cc.SessionIdle != time.Minute || cc.DefaultLocale != "ja" {
		t.Errorf("CounselConfig = %+v", cc)
	}
	if cc.Episodes.Cap != cfg.Episodes.Cap || cc.Generation.Timeout != cfg.Generation.Timeout {
		t.Errorf("nested config not copied")
	}
}

func TestLoadClientConfig(t *testing.T) {
	cfg, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if cfg.Daemon.Socket != "/tmp/counseld.sock" || cfg.ChatTimeout != 60 || cfg.Locale != "ja" {
		t.Errorf("defaults = %+v", cfg)
	}

	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := SaveClientConfig(&ClientConfig{UserID: "u1", Daemon: DaemonConfig{TCP: "localhost:1"}}, path); err != nil {
		t.Fatalf("SaveClientConfig: %v", err)
	}
	cfg, err = LoadClientConfig(path)
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if cfg.UserID != "u1" || cfg.Daemon.TCP != "localhost:1" || cfg.Daemon.Socket != "/tmp/counseld.sock" {
		t.Errorf("merged = %+v", cfg)
	}
}
