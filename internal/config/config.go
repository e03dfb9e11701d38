package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultSearchDenyDomains keeps the benchmark's published answers out of search results.
const DefaultSearchDenyDomains = "huggingface.co/datasets/gaia-benchmark"

type Config struct {
	ControlPlanePort    string
	ControlPlaneURL     string
	PostgresURL         string
	TemporalAddress     string
	TemporalTaskQueue   string
	RedisURL            string
	WorkerMetricsPort   string
	LogLevel            string
	LogFormat           string
	AgentAlias          string
	LLMProvider         string
	LLMModel            string
	LLMBaseURL          string
	LLMFallbackProvider string
	LLMFallbackModel    string
	LLMFallbackBaseURL  string
	LLMStream           bool
	LLMTimeout          time.Duration
	OpenAIAPIKey        string
	OpenRouterAPIKey    string
	NavMaxDepth         int
	NavMaxRetries       int
	NavFastModel        string
	NavSlowModel        string
	NavDispatch         string
	NavMismatchPolicy   string
	NavJudgePDF         bool
	PDFMaxTokens        int
	PDFCharWindow       int
	SearchProvider      string
	SerpAPIKey          string
	SearchDenyDomains   string
	SearchDenyFile      string
	SearchRatePerSec    float64
	SearchMaxResults    int
	FetchTimeout        time.Duration
	FetchInsecureTLS    bool
	FetchMaxBytes       int64
	FinderMaxRetries    int
	MaxResearches       int
	APIWaitTimeout      time.Duration
}

func Load() Config {
	controlPlanePort := getEnv("CONTROL_PLANE_PORT", "8080")
	postgresURL := getEnv("POSTGRES_URL", "")
	if postgresURL == "" {
		postgresURL = buildPostgresURL()
	}
	llmModel := getEnv("LLM_MODEL", "gpt-4o")
	return Config{
		ControlPlanePort:    controlPlanePort,
		ControlPlaneURL:     getEnv("CONTROL_PLANE_URL", "http://localhost:"+controlPlanePort),
		PostgresURL:         postgresURL,
		TemporalAddress:     getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue:   getEnv("TEMPORAL_TASK_QUEUE", "seeker-questions"),
		RedisURL:            getEnv("REDIS_URL", ""),
		WorkerMetricsPort:   getEnv("WORKER_METRICS_PORT", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		AgentAlias:          getEnv("AGENT_ALIAS", "Seeker"),
		LLMProvider:         getEnv("LLM_PROVIDER", "openai"),
		LLMModel:            llmModel,
		LLMBaseURL:          getEnv("LLM_BASE_URL", ""),
		LLMFallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
		LLMFallbackModel:    getEnv("LLM_FALLBACK_MODEL", ""),
		LLMFallbackBaseURL:  getEnv("LLM_FALLBACK_BASE_URL", ""),
		LLMStream:           getEnvBool("LLM_STREAM", false),
		LLMTimeout:          getEnvDuration("LLM_TIMEOUT", 2*time.Minute),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenRouterAPIKey:    getEnv("OPENROUTER_API_KEY", ""),
		NavMaxDepth:         getEnvInt("NAV_MAX_DEPTH", 7),
		NavMaxRetries:       getEnvInt("NAV_MAX_RETRIES", 3),
		NavFastModel:        getEnv("NAV_FAST_MODEL", "gpt-4o-mini"),
		NavSlowModel:        getEnv("NAV_SLOW_MODEL", llmModel),
		NavDispatch:         strings.ToLower(getEnv("NAV_DISPATCH", "direct")),
		NavMismatchPolicy:   strings.ToLower(getEnv("NAV_MISMATCH_POLICY", "retry")),
		NavJudgePDF:         getEnvBool("NAV_JUDGE_PDF", true),
		PDFMaxTokens:        getEnvInt("PDF_MAX_TOKENS", 100000),
		PDFCharWindow:       getEnvInt("PDF_CHAR_WINDOW", 10000),
		SearchProvider:      strings.ToLower(getEnv("SEARCH_PROVIDER", "serpapi")),
		SerpAPIKey:          getEnv("SERPAPI_API_KEY", ""),
		SearchDenyDomains:   getEnv("SEARCH_DENY_DOMAINS", DefaultSearchDenyDomains),
		SearchDenyFile:      getEnv("SEARCH_DENY_FILE", ""),
		SearchRatePerSec:    getEnvFloat("SEARCH_RATE_PER_SEC", 0),
		SearchMaxResults:    getEnvInt("SEARCH_MAX_RESULTS", 10),
		FetchTimeout:        getEnvDuration("FETCH_TIMEOUT", 60*time.Second),
		FetchInsecureTLS:    getEnvBool("FETCH_INSECURE_TLS", false),
		FetchMaxBytes:       int64(getEnvInt("FETCH_MAX_BYTES", 20<<20)),
		FinderMaxRetries:    getEnvInt("FINDER_MAX_RETRIES", 3),
		MaxResearches:       getEnvInt("MAX_RESEARCHES", 2),
		APIWaitTimeout:      getEnvDuration("API_WAIT_TIMEOUT", 10*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func buildPostgresURL() string {
	user := getEnv("POSTGRES_USER", "seeker")
	password := getEnv("POSTGRES_PASSWORD", "seeker")
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	database := getEnv("POSTGRES_DB", "seeker")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}
