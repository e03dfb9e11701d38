package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"
)

var (
	ErrMissingAPIKey = errors.New("missing API key for remote provider")
	ErrMissingModel  = errors.New("missing model for remote provider")
	ErrEmptyResponse = errors.New("LLM response was empty")
	ErrNoProviders   = errors.New("no llm providers configured")
)

var retryableStatusRE = regexp.MustCompile(`(?:^|\D)(429|500|502|503|504)(?:\D|$)`)

type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported LLM provider: %s", e.Provider)
}

// StatusError is returned by the raw HTTP provider for non-2xx responses.
type StatusError struct {
	Status     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("LLM request failed: %s", e.Status)
}

func statusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var requestErr *openai.RequestError
	if errors.As(err, &requestErr) {
		return requestErr.HTTPStatusCode
	}
	return 0
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyResponse) {
		return true
	}
	switch statusCode(err) {
	case 429, 500, 502, 503, 504:
		return true
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	if message == "" {
		return false
	}
	if strings.Contains(message, "timeout") || strings.Contains(message, "timed out") {
		return true
	}
	if strings.Contains(message, "bad gateway") || strings.Contains(message, "temporarily unavailable") {
		return true
	}
	if strings.Contains(message, "connection reset") || strings.Contains(message, "connection refused") {
		return true
	}
	return retryableStatusRE.MatchString(message)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "timeout") || strings.Contains(message, "timed out")
}

func shouldFailover(err error) bool {
	if err == nil {
		return false
	}
	switch statusCode(err) {
	case 502, 503, 504:
		return true
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(message, "bad gateway") || strings.Contains(message, "service unavailable") || strings.Contains(message, "gateway timeout") {
		return true
	}
	return strings.Contains(message, " 502") || strings.Contains(message, " 503") || strings.Contains(message, " 504")
}
