package llm

import "testing"

func TestNewProviderDefaults(t *testing.T) {
	cases := []struct {
		provider string
		wantErr  bool
	}{
		{"ollama", false},
		{"lmstudio", false},
		{"openrouter", false},
		{"groq", false},
		{"xai", false},
		{"openai", false},
		{"gemini", true},  // requires BaseURL
		{"custom", true},  // requires BaseURL
		{"unknown", true}, // unknown provider name
	}

	for _, c := range cases {
		_, err := NewProvider(Config{Provider: c.provider, Model: "test-model"})
		if c.wantErr && err == nil {
			t.Errorf("provider %q: expected error, got nil", c.provider)
		}
		if !c.wantErr && err != nil {
			t.Errorf("provider %q: unexpected error: %v", c.provider, err)
		}
	}
}

func TestNewProviderGeminiWithBaseURL(t *testing.T) {
	p, err := NewProvider(Config{Provider: "gemini", BaseURL: "https://example.test/v1", Model: "gemini-1.5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}
