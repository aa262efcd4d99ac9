// Package inference provides the language-model side of the assistant.
//
// Chat completions are abstracted behind a single Provider interface so the
// agent can talk to any OpenAI-compatible endpoint (Groq, OpenAI, Ollama,
// vLLM, Together). Processor layers conversation memory on top of a Provider
// and exposes the one call the interaction controller needs.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithBaseURL(inference.GroqBaseURL),
//	    inference.WithAPIKey(os.Getenv("GROQ_API_KEY")),
//	    inference.WithModel("llama-3.3-70b-versatile"),
//	)
//	defer client.Close()
//
//	proc := inference.NewProcessor(client, inference.WithSystemPrompt("You are a helpful assistant."))
//	reply, _ := proc.Process(ctx, "Hello!")
package inference

import "context"

// Provider is the chat-completion interface all backends implement.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// TopP controls nucleus sampling.
	TopP float64

	// Stop sequences that halt generation.
	Stop []string
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
