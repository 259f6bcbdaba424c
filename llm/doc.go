// Package llm provides a provider-neutral abstraction over text-generation
// APIs (Anthropic, OpenAI, Ollama).
//
// # Core Concepts
//
//  1. Messages: a Message carries a role and plain text. Requests hold an
//     optional system prompt and the conversation messages.
//
//  2. Client: Synchronous sends a request and returns the complete response
//     text. Provider packages implement it and translate their SDK errors
//     into *Error values.
//
//  3. Middleware: BeforeRequest, AfterResponse and OnError hooks wrap any
//     Client through WrapWithMiddleware.
//
//  4. Errors: the Error type classifies failures (rate limit, timeout,
//     invalid request, provider) and records whether a retry may help.
//
//  5. ProviderRegistry: resolves an ordered list of provider preferences to
//     the first provider that is both enabled and configured.
//
// Usage Example
//
//	client := llm.WrapWithMiddleware(base, loggingMiddleware)
//
//	resp, err := client.Synchronous(ctx, &llm.Request{
//	    Model:    "claude-haiku-4-5",
//	    System:   system,
//	    Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "こんにちは")},
//	})
package llm
