package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Stream  bool
	Timeout time.Duration
}

// OpenAIProvider talks to the OpenAI chat completions API through go-openai.
type OpenAIProvider struct {
	apiKey  string
	model   string
	baseURL string
	stream  bool
	client  *openai.Client
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = baseURL
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIProvider{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: baseURL,
		stream:  cfg.Stream,
		client:  openai.NewClientWithConfig(clientCfg),
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	if p.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	model := defaultIfEmpty(req.Model, p.model)
	if model == "" {
		return "", ErrMissingModel
	}
	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(req.Messages),
		Stop:     req.Stop,
	}
	var (
		content string
		err     error
	)
	if req.Stream || p.stream {
		content, err = p.generateStream(ctx, chatReq)
	} else {
		content, err = p.generateOnce(ctx, chatReq)
	}
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func (p *OpenAIProvider) generateOnce(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("LLM response had no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) generateStream(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM stream failed: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("LLM stream failed: %w", err)
		}
		for _, choice := range chunk.Choices {
			sb.WriteString(choice.Delta.Content)
		}
	}
	return sb.String(), nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, message := range messages {
		converted = append(converted, openai.ChatCompletionMessage{Role: message.Role, Content: message.Content})
	}
	return converted
}
