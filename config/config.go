package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aschepis/backscratcher/counsel/counsel"
	"github.com/aschepis/backscratcher/counsel/crisis"
	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/generation"
	"github.com/aschepis/backscratcher/counsel/llm"
	"github.com/aschepis/backscratcher/counsel/outreach"
	"github.com/aschepis/backscratcher/counsel/relationship"
	"github.com/aschepis/backscratcher/counsel/sessions"
	storeredis "github.com/aschepis/backscratcher/counsel/storage/redis"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// AnthropicConfig represents configuration for Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"` // Anthropic API key
}

// OllamaConfig represents configuration for Ollama LLM provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`  // Ollama host (default: "http://localhost:11434")
	Model string `yaml:"model,omitempty"` // Default model name
}

// OpenAIConfig represents configuration for OpenAI LLM provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // OpenAI API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`        // Default model name
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// LLMPreference is one provider/model choice. The first available preference
// is used for generation; an empty Model uses the provider default.
type LLMPreference struct {
	Provider    string   `yaml:"provider" validate:"required,oneof=anthropic ollama openai"`
	Model       string   `yaml:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// SQLiteConfig locates the SQLite database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig selects and configures the persistence engine.
type StorageConfig struct {
	Driver string            `yaml:"driver" validate:"oneof=sqlite redis memory"`
	SQLite SQLiteConfig      `yaml:"sqlite,omitempty"`
	Redis  storeredis.Config `yaml:"redis,omitempty"`
}

// CrisisConfig controls crisis handling.
type CrisisConfig struct {
	// ShortCircuit answers crisis turns with the safety template instead of
	// calling the provider.
	ShortCircuit  bool                             `yaml:"short_circuit,omitempty"`
	DefaultLocale string                           `yaml:"default_locale,omitempty" validate:"required"`
	Hotlines      map[string]crisis.LocaleHotlines `yaml:"hotlines,omitempty"` // Replaces the built-in block per locale
}

// RateLimitConfig bounds turns per user. Enabled by default.
type RateLimitConfig struct {
	Disabled          bool          `yaml:"disabled,omitempty"`
	RequestsPerMinute float64       `yaml:"requests_per_minute,omitempty" validate:"gt=0"`
	Burst             int           `yaml:"burst,omitempty" validate:"gte=1"`
	IdleTTL           time.Duration `yaml:"idle_ttl,omitempty" validate:"gt=0"` // Limiter state is dropped for users idle this long
}

// ServerConfig represents server-side configuration for the counseld daemon.
type ServerConfig struct {
	// Server settings
	Server struct {
		Socket string `yaml:"socket,omitempty"` // Unix socket path (default: /tmp/counseld.sock)
		TCP    string `yaml:"tcp,omitempty"`    // TCP address (e.g., localhost:50051)
	} `yaml:"server,omitempty"`

	Metrics struct {
		Addr string `yaml:"addr,omitempty"` // Prometheus listen address; empty disables the endpoint
	} `yaml:"metrics,omitempty"`

	// LLM provider configurations
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`

	LLMProviders []string        `yaml:"llm_providers,omitempty" validate:"min=1,dive,oneof=anthropic ollama openai"`
	LLM          []LLMPreference `yaml:"llm,omitempty" validate:"dive"`

	Generation generation.Config `yaml:"generation,omitempty"`
	Storage    StorageConfig     `yaml:"storage,omitempty"`

	Relationship struct {
		InactivityWindow time.Duration `yaml:"inactivity_window,omitempty" validate:"gt=0"`
	} `yaml:"relationship,omitempty"`

	Episodes episode.Config `yaml:"episodes,omitempty"`

	Sessions struct {
		IdleWindow time.Duration `yaml:"idle_window,omitempty" validate:"gt=0"`
	} `yaml:"sessions,omitempty"`

	Crisis    CrisisConfig    `yaml:"crisis,omitempty"`
	Outreach  outreach.Config `yaml:"outreach,omitempty"`
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty"`
}

type DaemonConfig struct {
	Socket string `yaml:"socket,omitempty"` // Unix socket path (default: /tmp/counseld.sock)
	TCP    string `yaml:"tcp,omitempty"`    // TCP address (e.g., localhost:50051)
}

// ClientConfig represents client-side configuration for the counsel CLI.
type ClientConfig struct {
	// Connection settings
	Daemon DaemonConfig `yaml:"daemon,omitempty"`

	UserID      string `yaml:"user_id,omitempty"`      // Default user for chat
	Locale      string `yaml:"locale,omitempty"`       // Hotline locale sent with each turn
	ChatTimeout int    `yaml:"chat_timeout,omitempty"` // Timeout in seconds for chat operations (default: 60)
}

// DefaultServerConfig returns the built-in server configuration.
func DefaultServerConfig() ServerConfig {
	cfg := ServerConfig{
		LLMProviders: []string{llm.ProviderAnthropic},
		Ollama: OllamaConfig{
			Host:  "http://localhost:11434",
			Model: "llama3.2:3b",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Generation: generation.DefaultConfig(),
		Episodes:   episode.DefaultConfig(),
		Crisis: CrisisConfig{
			DefaultLocale: "ja",
		},
		Outreach: outreach.DefaultConfig(),
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 20,
			Burst:             5,
			IdleTTL:           time.Hour,
		},
	}
	cfg.Server.Socket = "/tmp/counseld.sock"
	cfg.Storage.Driver = DriverSQLite
	cfg.Storage.SQLite.Path = "counsel.db"
	cfg.Storage.Redis = storeredis.Config{Addr: "localhost:6379", Prefix: storeredis.DefaultPrefix}
	cfg.Relationship.InactivityWindow = relationship.DefaultInactivityWindow
	cfg.Sessions.IdleWindow = sessions.DefaultIdleWindow
	return cfg
}

// GetServerConfigPath returns the default server config file path.
// Can be overridden via COUNSEL_CONFIG_PATH environment variable.
func GetServerConfigPath() string {
	if envPath := os.Getenv("COUNSEL_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.counseld/config.yaml"
	}
	return filepath.Join(homeDir, ".counseld", "config.yaml")
}

// GetClientConfigPath returns the default client config file path.
// Can be overridden via COUNSEL_CLIENT_CONFIG_PATH environment variable.
func GetClientConfigPath() string {
	if envPath := os.Getenv("COUNSEL_CLIENT_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.counseld/cli.yaml"
	}
	return filepath.Join(homeDir, ".counseld", "cli.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// SaveServerConfig saves the server configuration to the specified path.
func SaveServerConfig(cfg *ServerConfig, path string) error {
	return saveYAML(cfg, path)
}

// SaveClientConfig saves the client configuration to the specified path.
func SaveClientConfig(cfg *ClientConfig, path string) error {
	return saveYAML(cfg, path)
}

func saveYAML(v any, path string) error {
	expandedPath := expandPath(path)

	// Ensure directory exists
	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadServerConfig loads server-side configuration.
// Defaults are overlaid with the YAML file at path (if it exists), then with
// environment variables, and the result is validated.
func LoadServerConfig(path string) (*ServerConfig, error) {
	// Step 1: Set defaults
	cfg := DefaultServerConfig()

	// Step 2: Merge user config file onto the defaults (if it exists)
	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}
		if err := mergeYAML(&cfg, data); err != nil {
			return nil, err
		}
	}

	// Step 3: Environment overrides
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	// Step 4: Validate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeYAML decodes data and merges it onto cfg. Zero values in data do not
// override defaults; booleans that default to true are therefore expressed
// as Disabled flags.
func mergeYAML(cfg *ServerConfig, data []byte) error {
	var user ServerConfig
	if err := yaml.Unmarshal(data, &user); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func applyEnv(cfg *ServerConfig) error {
	cfg.Anthropic.APIKey = LoadAnthropicConfig(cfg)
	cfg.Ollama.Host, cfg.Ollama.Model = LoadOllamaConfig(cfg)
	cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.OpenAI.Organization = LoadOpenAIConfig(cfg)

	if v := os.Getenv("COUNSEL_GENERATION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid COUNSEL_GENERATION_TIMEOUT %q: %w", v, err)
		}
		cfg.Generation.Timeout = d
	}
	if v := os.Getenv("COUNSEL_DB_PATH"); v != "" {
		cfg.Storage.SQLite.Path = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("invalid config: storage.sqlite.path is required for the sqlite driver")
		}
	case DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("invalid config: storage.redis.addr is required for the redis driver")
		}
	}
	if c.Server.Socket == "" && c.Server.TCP == "" {
		return fmt.Errorf("invalid config: server.socket or server.tcp is required")
	}
	return nil
}

// ProviderConfig returns the provider settings for llm.NewProviderRegistry.
func (c *ServerConfig) ProviderConfig() *llm.ProviderConfig {
	return &llm.ProviderConfig{
		AnthropicAPIKey: c.Anthropic.APIKey,
		OllamaHost:      c.Ollama.Host,
		OllamaModel:     c.Ollama.Model,
		OpenAIAPIKey:    c.OpenAI.APIKey,
		OpenAIBaseURL:   c.OpenAI.BaseURL,
		OpenAIModel:     c.OpenAI.Model,
		OpenAIOrg:       c.OpenAI.Organization,
	}
}

// Preferences converts the configured LLM preferences.
func (c *ServerConfig) Preferences() []llm.LLMPreference {
	prefs := make([]llm.LLMPreference, 0, len(c.LLM))
	for _, p := range c.LLM {
		prefs = append(prefs, llm.LLMPreference{Provider: p.Provider, Model: p.Model, Temperature: p.Temperature})
	}
	return prefs
}

// Hotlines returns the embedded hotline directory with configured overrides
// applied.
func (c *ServerConfig) Hotlines() (*crisis.Directory, error) {
	dir, err := crisis.NewDefaultDirectory()
	if err != nil {
		return nil, err
	}
	merged, err := dir.Merge(c.Crisis.Hotlines)
	if err != nil {
		return nil, fmt.Errorf("invalid crisis.hotlines: %w", err)
	}
	return merged, nil
}

// CounselConfig returns the orchestrator settings.
func (c *ServerConfig) CounselConfig() counsel.Config {
	return counsel.Config{
		Generation:       c.Generation,
		Episodes:         c.Episodes,
		InactivityWindow: c.Relationship.InactivityWindow,
		SessionIdle:      c.Sessions.IdleWindow,
		ShortCircuit:     c.Crisis.ShortCircuit,
		DefaultLocale:    c.Crisis.DefaultLocale,
	}
}

// LoadClientConfig loads client-side configuration.
// Returns defaults if config file doesn't exist.
func LoadClientConfig(path string) (*ClientConfig, error) {
	defaults := ClientConfig{
		ChatTimeout: 60,
		Locale:      "ja",
	}
	defaults.Daemon.Socket = "/tmp/counseld.sock"

	// Load config file if it exists
	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err != nil {
		// File doesn't exist, return defaults
		return &defaults, nil
	}

	configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read client config file %q: %w", expandedPath, err)
	}

	var config ClientConfig
	if err := yaml.Unmarshal(configYAML, &config); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}

	// Merge loaded config onto defaults
	if err := mergo.Merge(&defaults, config, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge client config: %w", err)
	}

	return &defaults, nil
}
