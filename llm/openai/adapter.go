package openai

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/aschepis/backscratcher/counsel/llm"
)

// ToOpenAIMessages converts a system prompt and llm.Messages to OpenAI chat
// messages. A non-empty system prompt becomes the leading system message.
func ToOpenAIMessages(system string, msgs []llm.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range msgs {
		result = append(result, ToOpenAIMessage(msg))
	}
	return result
}

// ToOpenAIMessage converts a single llm.Message to OpenAI format.
func ToOpenAIMessage(msg llm.Message) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	switch msg.Role {
	case llm.RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case llm.RoleSystem:
		role = openai.ChatMessageRoleSystem
	}
	return openai.ChatCompletionMessage{Role: role, Content: msg.Text}
}
