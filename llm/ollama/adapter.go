package ollama

import (
	"github.com/ollama/ollama/api"

	"github.com/aschepis/backscratcher/counsel/llm"
)

// ToOllamaMessages converts a system prompt and llm.Messages to Ollama chat
// messages. A non-empty system prompt becomes the leading system message.
func ToOllamaMessages(system string, msgs []llm.Message) []api.Message {
	result := make([]api.Message, 0, len(msgs)+1)
	if system != "" {
		result = append(result, api.Message{Role: string(llm.RoleSystem), Content: system})
	}
	for _, msg := range msgs {
		result = append(result, ToOllamaMessage(msg))
	}
	return result
}

// ToOllamaMessage converts a single llm.Message to Ollama format.
func ToOllamaMessage(msg llm.Message) api.Message {
	role := msg.Role
	if role == "" {
		role = llm.RoleUser
	}
	return api.Message{Role: string(role), Content: msg.Text}
}
