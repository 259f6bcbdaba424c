package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/llm"
)

// DefaultMaxTokens bounds a reply when the request does not.
const DefaultMaxTokens = 1024

// AnthropicClient implements the llm.Client interface for Anthropic's API.
type AnthropicClient struct {
	client *anthropic.Client
	logger zerolog.Logger
}

// NewAnthropicClient creates a new AnthropicClient with the given API key.
// SDK-level retries are disabled; callers own the retry policy.
func NewAnthropicClient(apiKey string, logger zerolog.Logger, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		client: &client,
		logger: logger.With().Str("component", "anthropicClient").Logger(),
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *AnthropicClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  ToMessageParams(req.Messages),
		System:    buildSystemBlocks(req.System),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, convertAnthropicError(err)
	}

	texts := make([]string, 0, len(message.Content))
	for _, blockUnion := range message.Content {
		if block, ok := blockUnion.AsAny().(anthropic.TextBlock); ok {
			texts = append(texts, block.Text)
		}
	}

	usage := &llm.Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	if usage.CacheCreationInputTokens > 0 || usage.CacheReadInputTokens > 0 {
		c.logger.Debug().
			Int64("input_tokens", usage.InputTokens).
			Int64("cache_creation_tokens", usage.CacheCreationInputTokens).
			Int64("cache_read_tokens", usage.CacheReadInputTokens).
			Msg("Prompt cache stats")
	}

	return &llm.Response{
		Text:       llm.JoinText(texts...),
		Usage:      usage,
		StopReason: string(message.StopReason),
	}, nil
}

// buildSystemBlocks marks the system prompt as cacheable. The phase tone and
// base instructions form a stable prefix across a user's turns.
func buildSystemBlocks(systemPrompt string) []anthropic.TextBlockParam {
	if systemPrompt == "" {
		return nil
	}
	return []anthropic.TextBlockParam{
		{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
	}
}

// convertAnthropicError converts Anthropic API errors to llm.Error types.
func convertAnthropicError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llm.ClassifyContextError(err)
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return llm.NewProviderError("Anthropic API error", err)
	}

	switch status := apiErr.StatusCode; {
	case status == http.StatusTooManyRequests:
		return llm.NewRateLimitError("Anthropic rate limit", retryAfter(apiErr.Response), err)
	case status == http.StatusRequestEntityTooLarge:
		return llm.NewRequestTooLargeError("Anthropic request too large", err)
	case status >= 400 && status < 500:
		return llm.NewInvalidRequestError("Anthropic invalid request", status, err)
	case status >= 500:
		// 529 is Anthropic's overloaded status.
		return llm.NewServerError("Anthropic server error", status, err)
	default:
		return llm.NewProviderError("Anthropic API error", err)
	}
}

func retryAfter(resp *http.Response) *time.Duration {
	if resp == nil {
		return nil
	}
	secs, err := strconv.Atoi(resp.Header.Get("retry-after"))
	if err != nil || secs <= 0 {
		return nil
	}
	d := time.Duration(secs) * time.Second
	return &d
}
