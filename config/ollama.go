package config

import "os"

// LoadOllamaConfig loads Ollama configuration from server config.
// Environment variables OLLAMA_HOST and OLLAMA_MODEL take precedence.
func LoadOllamaConfig(cfg *ServerConfig) (host, model string) {
	if cfg == nil {
		// Return defaults
		host = getOllamaHostFromEnv()
		model = getOllamaModelFromEnv()
		return
	}

	host = cfg.Ollama.Host
	model = cfg.Ollama.Model

	// Apply environment variable overrides
	if envHost := getOllamaHostFromEnv(); envHost != "" {
		host = envHost
	}
	if envModel := getOllamaModelFromEnv(); envModel != "" {
		model = envModel
	}

	// Set defaults if still empty
	if host == "" {
		host = "http://localhost:11434"
	}

	return host, model
}

// getOllamaHostFromEnv gets the Ollama host from environment variable.
func getOllamaHostFromEnv() string {
	return os.Getenv("OLLAMA_HOST")
}

// getOllamaModelFromEnv gets the Ollama model from environment variable.
func getOllamaModelFromEnv() string {
	return os.Getenv("OLLAMA_MODEL")
}
