package search

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported search provider: %s", e.Provider)
}

type Config struct {
	Provider    string
	SerpAPIKey  string
	BaseURL     string
	MaxResults  int
	RatePerSec  float64
	DenyDomains string
	DenyFile    string
	Timeout     time.Duration
}

// NewProvider builds the configured provider wrapped with deny-list filtering and rate limiting.
func NewProvider(cfg Config) (Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	var base Provider
	switch cfg.Provider {
	case "", "serpapi":
		if cfg.SerpAPIKey == "" {
			return nil, ErrMissingAPIKey
		}
		base = NewSerpAPI(SerpAPIConfig{APIKey: cfg.SerpAPIKey, BaseURL: cfg.BaseURL, MaxResults: cfg.MaxResults, Client: client})
	case "duckduckgo":
		base = NewDuckDuckGo(DuckDuckGoConfig{BaseURL: cfg.BaseURL, MaxResults: cfg.MaxResults, Client: client})
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}

	deny := ParseDenyList(cfg.DenyDomains)
	if cfg.DenyFile != "" {
		fromFile, err := LoadDenyFile(cfg.DenyFile)
		if err != nil {
			return nil, err
		}
		deny = deny.Merge(fromFile)
	}
	var provider Provider = NewFiltered(base, deny)
	if cfg.RatePerSec > 0 {
		provider = NewLimited(provider, cfg.RatePerSec, 1)
	}
	return provider, nil
}
