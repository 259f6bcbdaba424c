package llm

import (
	"strings"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is a single provider-neutral text message.
type Message struct {
	Role MessageRole `json:"role"`
	Text string      `json:"text"`
}

// Request represents a complete LLM API request.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	MaxTokens   int64
	Temperature *float64 // Optional temperature override
}

// Response represents a complete LLM API response.
type Response struct {
	Text       string
	Usage      *Usage
	StopReason string
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	// Anthropic prompt caching
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// NewTextMessage creates a message with the given role and text.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{Role: role, Text: text}
}

// JoinText concatenates non-empty text parts with newlines. Providers that
// return several content parts use it to build Response.Text.
func JoinText(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
