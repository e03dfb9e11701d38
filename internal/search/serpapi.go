package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var ErrMissingAPIKey = errors.New("missing SerpAPI API key")

type SerpAPIConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Client     *http.Client
}

type SerpAPI struct {
	apiKey     string
	baseURL    string
	maxResults int
	client     *http.Client
}

func NewSerpAPI(cfg SerpAPIConfig) *SerpAPI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://serpapi.com"
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &SerpAPI{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: cfg.MaxResults,
		client:     client,
	}
}

func (s *SerpAPI) Search(ctx context.Context, query string) ([]Result, error) {
	if s.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", s.apiKey)
	if s.maxResults > 0 {
		params.Set("num", strconv.Itoa(s.maxResults))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("serpapi request failed: %s", resp.Status)
	}

	var parsed struct {
		Error          string `json:"error"`
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode serpapi response: %w", err)
	}
	if parsed.Error != "" && len(parsed.OrganicResults) == 0 {
		if strings.Contains(strings.ToLower(parsed.Error), "hasn't returned any results") {
			return []Result{}, nil
		}
		return nil, fmt.Errorf("serpapi: %s", parsed.Error)
	}
	results := make([]Result, 0, len(parsed.OrganicResults))
	for _, item := range parsed.OrganicResults {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(item.Title),
			Link:    link,
			Snippet: strings.TrimSpace(item.Snippet),
		})
	}
	return results, nil
}
