// Package llm provides the shared, long-lived client abstraction that C3
// (Metadata Extractor) and C4 (Embedder) are specified against. The
// external LLM and embedding services are out-of-scope collaborators per
// the core's purpose and scope; this package gives them a concrete,
// reusable adapter so the core never constructs a client per request.
package llm

import "context"

// Message is one turn in a chat completion request.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ChatRequest is a structured-output chat completion request. JSONMode, when
// true, asks the provider to constrain output to a JSON object — used by the
// metadata extractor's structured-output calls.
type ChatRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
	JSONMode    bool
}

// ChatResponse is the provider's reply plus basic usage accounting.
type ChatResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Provider is the single collaborator interface C3 and C4 depend on. A
// Provider instance is a process-singleton: it owns its own HTTP client and
// connection pool and is shared across every concurrent call, never
// constructed per request (specified anti-pattern, §4.3/§5).
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config describes one provider endpoint.
type Config struct {
	Provider string // ollama | lmstudio | openrouter | openai | groq | xai | gemini | custom
	Model    string
	BaseURL  string
	APIKey   string
}
