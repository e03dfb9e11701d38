package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompatProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer router-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["model"] != "slow" {
			t.Errorf("expected model override, got %v", payload["model"])
		}
		if _, ok := payload["stop"]; !ok {
			t.Errorf("expected stop in payload")
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" hello "}}]}`))
	}))
	defer server.Close()

	provider := NewCompatProvider(CompatConfig{APIKey: "router-key", Model: "default", BaseURL: server.URL + "/"})
	response, err := provider.Generate(context.Background(), Request{Messages: []Message{User("hi")}, Model: "slow", Stop: []string{"\n"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if response != "hello" {
		t.Errorf("unexpected response %q", response)
	}
}

func TestCompatProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(error) bool
	}{
		{
			name:   "status error",
			status: http.StatusBadGateway,
			body:   `{}`,
			wantErr: func(err error) bool {
				var statusErr *StatusError
				return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadGateway
			},
		},
		{
			name:    "no choices",
			status:  http.StatusOK,
			body:    `{"choices":[]}`,
			wantErr: func(err error) bool { return err != nil && err.Error() == "LLM response had no choices" },
		},
		{
			name:    "empty content",
			status:  http.StatusOK,
			body:    `{"choices":[{"message":{"content":""}}]}`,
			wantErr: func(err error) bool { return errors.Is(err, ErrEmptyResponse) },
		},
		{
			name:    "invalid json",
			status:  http.StatusOK,
			body:    `not json`,
			wantErr: func(err error) bool { return err != nil },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewCompatProvider(CompatConfig{APIKey: "k", Model: "m", BaseURL: server.URL}).Generate(context.Background(), Request{Messages: []Message{User("x")}})
			if !tt.wantErr(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestCompatProvider_MissingConfig(t *testing.T) {
	if _, err := NewCompatProvider(CompatConfig{Model: "m"}).Generate(context.Background(), Request{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := NewCompatProvider(CompatConfig{APIKey: "k"}).Generate(context.Background(), Request{}); !errors.Is(err, ErrMissingModel) {
		t.Fatalf("expected ErrMissingModel, got %v", err)
	}
}
