package generation

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/llm"
	"github.com/aschepis/backscratcher/counsel/metrics"
)

// ObservabilityMiddleware logs provider calls and records token and error
// metrics. It logs sizes only, never prompt or reply text.
type ObservabilityMiddleware struct {
	provider string
	logger   zerolog.Logger
}

// NewObservabilityMiddleware creates the middleware for provider.
func NewObservabilityMiddleware(provider string, logger zerolog.Logger) *ObservabilityMiddleware {
	return &ObservabilityMiddleware{
		provider: provider,
		logger:   logger.With().Str("component", "llmMiddleware").Str("provider", provider).Logger(),
	}
}

// BeforeRequest implements llm.Middleware.BeforeRequest.
func (m *ObservabilityMiddleware) BeforeRequest(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	m.logger.Debug().
		Str("model", req.Model).
		Int("system_bytes", len(req.System)).
		Int("messages", len(req.Messages)).
		Msg("sending request")
	return req, nil
}

// AfterResponse implements llm.Middleware.AfterResponse.
func (m *ObservabilityMiddleware) AfterResponse(ctx context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	if resp.Usage != nil {
		metrics.AddTokens(m.provider, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		m.logger.Debug().
			Int64("input_tokens", resp.Usage.InputTokens).
			Int64("output_tokens", resp.Usage.OutputTokens).
			Str("stop_reason", resp.StopReason).
			Msg("received response")
	}
	return resp, nil
}

// OnError implements llm.Middleware.OnError.
func (m *ObservabilityMiddleware) OnError(ctx context.Context, req *llm.Request, err error) error {
	errType := string(llm.ErrorTypeUnknown)
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		errType = string(llmErr.Type)
	}
	metrics.IncGenerationError(m.provider, errType)
	m.logger.Warn().
		Str("error_type", errType).
		Bool("retryable", llm.IsRetryableError(err)).
		Err(err).
		Msg("provider call failed")
	return err
}
