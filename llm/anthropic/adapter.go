package anthropic

import (
	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/counsel/llm"
)

// ToMessageParam converts an llm.Message to an Anthropic MessageParam.
// System messages are sent as user text; the system prompt travels in
// MessageNewParams.System.
func ToMessageParam(msg llm.Message) anthropic.MessageParam {
	block := anthropic.NewTextBlock(msg.Text)
	if msg.Role == llm.RoleAssistant {
		return anthropic.NewAssistantMessage(block)
	}
	return anthropic.NewUserMessage(block)
}

// ToMessageParams converts a slice of llm.Messages to Anthropic MessageParams.
func ToMessageParams(msgs []llm.Message) []anthropic.MessageParam {
	return lo.Map(msgs, func(msg llm.Message, _ int) anthropic.MessageParam {
		return ToMessageParam(msg)
	})
}
