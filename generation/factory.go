package generation

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/llm"
	llmanthropic "github.com/aschepis/backscratcher/counsel/llm/anthropic"
	llmollama "github.com/aschepis/backscratcher/counsel/llm/ollama"
	llmopenai "github.com/aschepis/backscratcher/counsel/llm/openai"
)

// NewClient creates the provider client for key.
func NewClient(key *llm.ClientKey, logger zerolog.Logger) (llm.Client, error) {
	switch key.Provider {
	case llm.ProviderAnthropic:
		if key.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		client, err := llmanthropic.NewAnthropicClient(key.APIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic client: %w", err)
		}
		return client, nil

	case llm.ProviderOllama:
		client, err := llmollama.NewOllamaClient(key.Host, key.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return client, nil

	case llm.ProviderOpenAI:
		if key.APIKey == "" {
			return nil, fmt.Errorf("openai API key is required")
		}
		client, err := llmopenai.NewOpenAIClient(key.APIKey, key.BaseURL, key.Model, key.Organization)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", key.Provider)
	}
}

// FromRegistry resolves prefs against registry, builds the provider client,
// wraps it with the observability middleware and returns the generator.
func FromRegistry(registry *llm.ProviderRegistry, prefs []llm.LLMPreference, cfg Config, logger zerolog.Logger) (*LLMGenerator, error) {
	key, err := registry.Resolve(prefs)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}

	base, err := NewClient(key, logger)
	if err != nil {
		return nil, err
	}
	client := llm.WrapWithMiddleware(base, NewObservabilityMiddleware(key.Provider, logger))

	logger.Info().
		Str("provider", key.Provider).
		Str("model", key.Model).
		Msg("generator configured")
	return NewLLMGenerator(client, key.Provider, key.Model, key.Temperature, cfg, logger), nil
}
