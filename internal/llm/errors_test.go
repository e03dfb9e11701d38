package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestErrUnsupportedProvider_Error(t *testing.T) {
	err := ErrUnsupportedProvider{Provider: "my-custom-provider"}
	if err.Error() != "unsupported LLM provider: my-custom-provider" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: fmt.Errorf("wrap: %w", context.DeadlineExceeded), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "empty response", err: ErrEmptyResponse, want: true},
		{name: "status 429", err: &StatusError{Status: "429 Too Many Requests", StatusCode: 429}, want: true},
		{name: "status 400", err: &StatusError{Status: "400 Bad Request", StatusCode: 400}, want: false},
		{name: "openai api 503", err: fmt.Errorf("LLM request failed: %w", &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"}), want: true},
		{name: "connection reset", err: errors.New("read: connection reset by peer"), want: true},
		{name: "missing key", err: ErrMissingAPIKey, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestShouldFailover(t *testing.T) {
	if !shouldFailover(&StatusError{Status: "502 Bad Gateway", StatusCode: 502}) {
		t.Error("expected 502 to fail over")
	}
	if !shouldFailover(&openai.APIError{HTTPStatusCode: 504}) {
		t.Error("expected 504 to fail over")
	}
	if shouldFailover(&StatusError{Status: "429 Too Many Requests", StatusCode: 429}) {
		t.Error("429 should be retried on the same provider")
	}
	if shouldFailover(nil) {
		t.Error("nil should not fail over")
	}
}

func TestIsTimeout(t *testing.T) {
	if !isTimeout(context.DeadlineExceeded) {
		t.Error("deadline should be a timeout")
	}
	if !isTimeout(errors.New("Client.Timeout exceeded while awaiting headers")) {
		t.Error("client timeout should be a timeout")
	}
	if isTimeout(errors.New("boom")) {
		t.Error("boom is not a timeout")
	}
}
