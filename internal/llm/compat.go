package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

type CompatConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// CompatProvider speaks the OpenAI chat completions wire format over plain HTTP for gateways
// (OpenRouter, Moonshot) that accept extra fields go-openai does not model.
type CompatProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewCompatProvider(cfg CompatConfig) *CompatProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &CompatProvider{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *CompatProvider) Generate(ctx context.Context, req Request) (string, error) {
	if p.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	model := defaultIfEmpty(req.Model, p.model)
	if model == "" {
		return "", ErrMissingModel
	}
	payload := map[string]any{
		"model":    model,
		"messages": req.Messages,
	}
	if len(req.Stop) > 0 {
		payload["stop"] = req.Stop
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", &StatusError{Status: resp.Status, StatusCode: resp.StatusCode}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("LLM response had no choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
