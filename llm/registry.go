package llm

import (
	"fmt"
	"strings"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

// Default models used when neither the preference nor the provider config
// names one.
const (
	DefaultAnthropicModel = "claude-haiku-4-5"
	DefaultOllamaHost     = "http://localhost:11434"
)

// LLMPreference is one provider/model choice, in priority order.
type LLMPreference struct {
	Provider    string
	Model       string
	Temperature *float64
}

// ClientKey identifies a resolved client configuration.
type ClientKey struct {
	Provider     string
	Model        string
	APIKey       string // anthropic, openai
	Host         string // ollama
	BaseURL      string // openai
	Organization string // openai
	Temperature  *float64
}

// ProviderConfig carries provider credentials and defaults. The config
// package fills it after applying environment overrides, so the registry
// never reads the environment itself.
type ProviderConfig struct {
	AnthropicAPIKey string
	OllamaHost      string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIOrg       string
}

// ProviderRegistry picks the provider and model for generation. It is
// immutable after construction.
type ProviderRegistry struct {
	enabled map[string]bool
	order   []string // enabled providers in configured order
	config  ProviderConfig
}

// NewProviderRegistry creates a registry over the enabled providers.
// Duplicates keep their first position.
func NewProviderRegistry(providerConfig *ProviderConfig, enabledProviders []string) *ProviderRegistry {
	r := &ProviderRegistry{enabled: make(map[string]bool)}
	if providerConfig != nil {
		r.config = *providerConfig
	}
	for _, p := range enabledProviders {
		if r.enabled[p] {
			continue
		}
		r.enabled[p] = true
		r.order = append(r.order, p)
	}
	return r
}

// IsProviderEnabled reports whether provider is in the enabled list.
func (r *ProviderRegistry) IsProviderEnabled(provider string) bool {
	return r.enabled[provider]
}

// IsProviderConfigured reports whether provider has the credentials it needs.
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	switch provider {
	case ProviderAnthropic:
		return r.config.AnthropicAPIKey != ""
	case ProviderOllama:
		// Local daemon; the host has a default.
		return true
	case ProviderOpenAI:
		return r.config.OpenAIAPIKey != ""
	default:
		return false
	}
}

// Resolve returns a ClientKey for the first preference whose provider is
// enabled and configured. With no preferences it uses the first enabled
// provider and its default model. The error lists why each candidate was
// skipped.
func (r *ProviderRegistry) Resolve(prefs []LLMPreference) (*ClientKey, error) {
	if len(prefs) == 0 {
		if len(r.order) == 0 {
			return nil, fmt.Errorf("no providers enabled")
		}
		prefs = []LLMPreference{{Provider: r.order[0]}}
	}

	var skipped []string
	for _, pref := range prefs {
		key, err := r.resolve(pref)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", pref.Provider, err))
			continue
		}
		return key, nil
	}
	return nil, fmt.Errorf("no available provider (%s)", strings.Join(skipped, "; "))
}

func (r *ProviderRegistry) resolve(pref LLMPreference) (*ClientKey, error) {
	if !r.enabled[pref.Provider] {
		return nil, fmt.Errorf("not enabled")
	}
	if !r.IsProviderConfigured(pref.Provider) {
		return nil, fmt.Errorf("not configured")
	}

	key := &ClientKey{
		Provider:    pref.Provider,
		Model:       pref.Model,
		Temperature: pref.Temperature,
	}

	switch pref.Provider {
	case ProviderAnthropic:
		key.APIKey = r.config.AnthropicAPIKey
		if key.Model == "" {
			key.Model = DefaultAnthropicModel
		}

	case ProviderOllama:
		key.Host = r.config.OllamaHost
		if key.Host == "" {
			key.Host = DefaultOllamaHost
		}
		if key.Model == "" {
			key.Model = r.config.OllamaModel
		}
		if key.Model == "" {
			return nil, fmt.Errorf("no model specified and no default configured")
		}

	case ProviderOpenAI:
		key.APIKey = r.config.OpenAIAPIKey
		key.BaseURL = r.config.OpenAIBaseURL
		key.Organization = r.config.OpenAIOrg
		if key.Model == "" {
			key.Model = r.config.OpenAIModel
		}
		if key.Model == "" {
			return nil, fmt.Errorf("no model specified and no default configured")
		}

	default:
		return nil, fmt.Errorf("unknown provider")
	}

	return key, nil
}
