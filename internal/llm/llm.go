package llm

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message { return Message{Role: "system", Content: content} }

func User(content string) Message { return Message{Role: "user", Content: content} }

func Assistant(content string) Message { return Message{Role: "assistant", Content: content} }

// Request is one chat completion. Model overrides the provider's configured model when set.
type Request struct {
	Messages []Message
	Model    string
	Stop     []string
	Stream   bool
}

type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Config struct {
	Provider         string
	Model            string
	BaseURL          string
	FallbackProvider string
	FallbackModel    string
	FallbackBaseURL  string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	Stream           bool
	Timeout          time.Duration
}

func NewProvider(cfg Config) (Provider, error) {
	switch strings.TrimSpace(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Stream:  cfg.Stream,
			Timeout: cfg.Timeout,
		}), nil
	case "openrouter":
		return NewCompatProvider(CompatConfig{
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.Model,
			BaseURL: defaultIfEmpty(cfg.BaseURL, "https://openrouter.ai/api/v1"),
			Timeout: cfg.Timeout,
		}), nil
	case "moonshot-ai":
		return NewCompatProvider(CompatConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: defaultIfEmpty(cfg.BaseURL, "https://api.moonshot.ai/v1"),
			Timeout: cfg.Timeout,
		}), nil
	case "compat":
		return NewCompatProvider(CompatConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}

// New builds the primary provider plus the optional fallback provider behind retry and failover.
func New(cfg Config, logger *zap.Logger) (*FallbackProvider, error) {
	candidates := make([]Candidate, 0, 2)
	seen := map[string]struct{}{}

	appendCandidate := func(candidateCfg Config, required bool) error {
		key := strings.TrimSpace(candidateCfg.Provider) + "|" + strings.TrimSpace(candidateCfg.Model)
		if _, exists := seen[key]; exists {
			return nil
		}
		provider, err := newProvider(candidateCfg)
		if err != nil {
			if required {
				return err
			}
			return nil
		}
		seen[key] = struct{}{}
		candidates = append(candidates, Candidate{Name: strings.TrimSpace(candidateCfg.Provider), Provider: provider})
		return nil
	}

	if err := appendCandidate(cfg, true); err != nil {
		return nil, err
	}
	if fallback := strings.TrimSpace(cfg.FallbackProvider); fallback != "" {
		fallbackCfg := cfg
		fallbackCfg.Provider = fallback
		fallbackCfg.Model = defaultIfEmpty(cfg.FallbackModel, cfg.Model)
		fallbackCfg.BaseURL = cfg.FallbackBaseURL
		_ = appendCandidate(fallbackCfg, false)
	}
	return NewFallbackProvider(candidates, FallbackOptions{Logger: logger}), nil
}

var newProvider = NewProvider

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
