package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/llm"
)

type fakeClient struct {
	resp *llm.Response
	err  error
	got  *llm.Request
}

func (f *fakeClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.got = req
	return f.resp, f.err
}

func TestLLMGenerator_Generate(t *testing.T) {
	temp := 0.3
	client := &fakeClient{resp: &llm.Response{Text: "  お話しできてよかったです  "}}
	g := NewLLMGenerator(client, "fake", "fake-model", &temp, DefaultConfig(), zerolog.Nop())

	text, err := g.Generate(context.Background(), "system prompt", "[PHONE_1]に電話して")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "お話しできてよかったです" {
		t.Errorf("text = %q", text)
	}
	if client.got.System != "system prompt" || client.got.Model != "fake-model" {
		t.Errorf("unexpected request %+v", client.got)
	}
	if len(client.got.Messages) != 1 || client.got.Messages[0].Text != "[PHONE_1]に電話して" {
		t.Errorf("messages = %+v", client.got.Messages)
	}
	if client.got.Temperature == nil || *client.got.Temperature != temp {
		t.Errorf("temperature not forwarded")
	}
}

func TestLLMGenerator_EmptyReply(t *testing.T) {
	g := NewLLMGenerator(&fakeClient{resp: &llm.Response{Text: " \n"}}, "fake", "m", nil, DefaultConfig(), zerolog.Nop())
	if _, err := g.Generate(context.Background(), "p", "m"); !errors.Is(err, ErrEmptyReply) {
		t.Errorf("err = %v, want ErrEmptyReply", err)
	}
}

func TestLLMGenerator_ErrorWrapped(t *testing.T) {
	cause := llm.NewTimeoutError("slow", context.DeadlineExceeded)
	client := llm.WrapWithMiddleware(&fakeClient{err: cause}, NewObservabilityMiddleware("fake", zerolog.Nop()))
	g := NewLLMGenerator(client, "fake", "m", nil, DefaultConfig(), zerolog.Nop())

	_, err := g.Generate(context.Background(), "p", "m")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapped deadline", err)
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		key     llm.ClientKey
		wantErr bool
	}{
		{"anthropic", llm.ClientKey{Provider: llm.ProviderAnthropic, APIKey: "k", Model: "claude-haiku-4-5"}, false},
		{"anthropic without key", llm.ClientKey{Provider: llm.ProviderAnthropic}, true},
		{"ollama", llm.ClientKey{Provider: llm.ProviderOllama, Host: "localhost:11434", Model: "qwen2.5:7b"}, false},
		{"openai", llm.ClientKey{Provider: llm.ProviderOpenAI, APIKey: "k", Model: "gpt-4o-mini"}, false},
		{"unknown", llm.ClientKey{Provider: "bard"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(&tt.key, zerolog.Nop())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromRegistry(t *testing.T) {
	registry := llm.NewProviderRegistry(&llm.ProviderConfig{OllamaHost: "localhost:11434", OllamaModel: "qwen2.5:7b"}, []string{llm.ProviderOllama})
	g, err := FromRegistry(registry, nil, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("FromRegistry: %v", err)
	}
	if g.Provider() != llm.ProviderOllama || g.Model() != "qwen2.5:7b" {
		t.Errorf("generator = %s/%s", g.Provider(), g.Model())
	}

	empty := llm.NewProviderRegistry(&llm.ProviderConfig{}, nil)
	if _, err := FromRegistry(empty, nil, DefaultConfig(), zerolog.Nop()); err == nil {
		t.Error("expected an error with no providers enabled")
	}
}
