package config

import "os"

// LoadAnthropicConfig returns the Anthropic API key, preferring the
// ANTHROPIC_API_KEY environment variable over the config file.
func LoadAnthropicConfig(cfg *ServerConfig) (apiKey string) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		return envKey
	}
	if cfg == nil {
		return ""
	}
	return cfg.Anthropic.APIKey
}
