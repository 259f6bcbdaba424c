// Package generation turns an assembled prompt into reply text through an
// llm.Client. It performs exactly one provider call per Generate; retry and
// timeout policy belong to the caller.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/llm"
	"github.com/aschepis/backscratcher/counsel/metrics"
)

// ErrEmptyReply is returned when the provider answers with no text.
var ErrEmptyReply = errors.New("provider returned an empty reply")

// Generator produces reply text for a system prompt and a masked user
// message.
type Generator interface {
	Generate(ctx context.Context, prompt, message string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt, message string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt, message string) (string, error) {
	return f(ctx, prompt, message)
}

// Config controls generation and the caller's retry policy.
type Config struct {
	// MaxTokens bounds each reply. Zero leaves the provider default.
	MaxTokens int64 `yaml:"max_tokens" validate:"gte=0"`
	// Timeout bounds one provider attempt.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	// Retries is the number of extra attempts after a failure.
	Retries int `yaml:"retries" validate:"gte=0,lte=3"`
	// RetryInterval is the initial backoff before a retry.
	RetryInterval time.Duration `yaml:"retry_interval" validate:"gte=0"`
}

// DefaultConfig returns a 30 second attempt timeout and one retry.
func DefaultConfig() Config {
	return Config{
		MaxTokens:     1024,
		Timeout:       30 * time.Second,
		Retries:       1,
		RetryInterval: 500 * time.Millisecond,
	}
}

// LLMGenerator is a Generator backed by an llm.Client.
type LLMGenerator struct {
	client      llm.Client
	provider    string
	model       string
	maxTokens   int64
	temperature *float64
	logger      zerolog.Logger
}

// NewLLMGenerator wraps client. provider is used for logs and metrics only.
func NewLLMGenerator(client llm.Client, provider, model string, temperature *float64, cfg Config, logger zerolog.Logger) *LLMGenerator {
	return &LLMGenerator{
		client:      client,
		provider:    provider,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: temperature,
		logger:      logger.With().Str("component", "generator").Str("provider", provider).Logger(),
	}
}

// Provider returns the provider name.
func (g *LLMGenerator) Provider() string {
	return g.provider
}

// Model returns the model name.
func (g *LLMGenerator) Model() string {
	return g.model
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, prompt, message string) (string, error) {
	start := time.Now()
	resp, err := g.client.Synchronous(ctx, &llm.Request{
		Model:       g.model,
		System:      prompt,
		Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, message)},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	metrics.ObserveGeneration(g.provider, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", g.provider, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
