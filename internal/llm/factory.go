package llm

import "fmt"

// NewProvider constructs the shared client for a provider configuration.
// The returned Provider is meant to be built once at process start and
// passed by reference into every component that needs it — never
// reconstructed per call.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434/v1"
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama" // ollama ignores the key but the SDK requires a non-empty token
		}
	case "lmstudio":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:1234/v1"
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "lm-studio"
		}
	case "openrouter":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://openrouter.ai/api/v1"
		}
	case "groq":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.groq.com/openai/v1"
		}
	case "xai":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.x.ai/v1"
		}
	case "gemini":
		// Google's OpenAI-compatible endpoint; see
		// https://ai.google.dev/gemini-api/docs/openai — BaseURL must be
		// supplied explicitly since there is no single default host for
		// every API version.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm: gemini provider requires BaseURL")
		}
	case "openai":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com/v1"
		}
	case "custom":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm: custom provider requires BaseURL")
		}
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}

	return newOpenAICompatProvider(cfg), nil
}
