package llm

import (
	"errors"
	"testing"
)

func TestNewProvider_OpenAI(t *testing.T) {
	provider, err := NewProvider(Config{Provider: "openai", Model: "gpt-4o", OpenAIAPIKey: "test-key", BaseURL: "https://api.openai.com/v1/"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	openAIProvider, ok := provider.(*OpenAIProvider)
	if !ok {
		t.Fatalf("expected *OpenAIProvider, got %T", provider)
	}
	if openAIProvider.model != "gpt-4o" || openAIProvider.apiKey != "test-key" {
		t.Errorf("unexpected provider fields: %+v", openAIProvider)
	}
	if openAIProvider.baseURL != "https://api.openai.com/v1" {
		t.Errorf("expected trimmed base URL, got %s", openAIProvider.baseURL)
	}
}

func TestNewProvider_CompatGateways(t *testing.T) {
	tests := []struct {
		provider string
		baseURL  string
		key      string
	}{
		{provider: "openrouter", baseURL: "https://openrouter.ai/api/v1", key: "router-key"},
		{provider: "moonshot-ai", baseURL: "https://api.moonshot.ai/v1", key: "openai-key"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			provider, err := NewProvider(Config{Provider: tt.provider, Model: "m", OpenAIAPIKey: "openai-key", OpenRouterAPIKey: "router-key"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			compat, ok := provider.(*CompatProvider)
			if !ok {
				t.Fatalf("expected *CompatProvider, got %T", provider)
			}
			if compat.baseURL != tt.baseURL {
				t.Errorf("expected base URL %s, got %s", tt.baseURL, compat.baseURL)
			}
			if compat.apiKey != tt.key {
				t.Errorf("expected key %s, got %s", tt.key, compat.apiKey)
			}
		})
	}
}

func TestNewProvider_Unsupported(t *testing.T) {
	_, err := NewProvider(Config{Provider: "codex"})
	var unsupported ErrUnsupportedProvider
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	if unsupported.Provider != "codex" {
		t.Errorf("expected provider codex, got %s", unsupported.Provider)
	}
}

func TestNew_BuildsFallbackChain(t *testing.T) {
	provider, err := New(Config{
		Provider:         "openai",
		Model:            "gpt-4o",
		OpenAIAPIKey:     "k",
		OpenRouterAPIKey: "r",
		FallbackProvider: "openrouter",
		FallbackModel:    "anthropic/claude-3.5-sonnet",
	}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	candidates := provider.Candidates()
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Name != "openai" || candidates[1].Name != "openrouter" {
		t.Errorf("unexpected candidate order: %s, %s", candidates[0].Name, candidates[1].Name)
	}
}

func TestNew_SkipsInvalidFallbackAndDuplicates(t *testing.T) {
	provider, err := New(Config{Provider: "openai", Model: "gpt-4o", FallbackProvider: "unknown"}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(provider.Candidates()) != 1 {
		t.Fatalf("expected invalid fallback to be skipped, got %d candidates", len(provider.Candidates()))
	}

	provider, err = New(Config{Provider: "openai", Model: "gpt-4o", FallbackProvider: "openai"}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(provider.Candidates()) != 1 {
		t.Fatalf("expected duplicate fallback to be skipped, got %d candidates", len(provider.Candidates()))
	}

	if _, err := New(Config{Provider: "nope"}, nil); err == nil {
		t.Fatal("expected error for unsupported primary provider")
	}
}

func TestMessageHelpers(t *testing.T) {
	if m := System("s"); m.Role != "system" || m.Content != "s" {
		t.Errorf("unexpected system message %+v", m)
	}
	if m := User("u"); m.Role != "user" {
		t.Errorf("unexpected user message %+v", m)
	}
	if m := Assistant("a"); m.Role != "assistant" {
		t.Errorf("unexpected assistant message %+v", m)
	}
}
