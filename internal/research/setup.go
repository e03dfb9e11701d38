package research

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/navigator"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/pdftext"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/rendezvous"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/search"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/web"
)

const DispatchRendezvous = "rendezvous"

// Deps are the collaborators shared by every question. Nil fields are built from config.
type Deps struct {
	Provider llm.Provider
	Searcher search.Provider
	Fetcher  navigator.Fetcher
	Metrics  *navigator.Metrics
	Table    *rendezvous.Table
	Logger   *zap.Logger
}

// NewDeps builds the LLM provider chain, search provider and fetcher from cfg.
func NewDeps(cfg config.Config, logger *zap.Logger) (Deps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider, err := llm.New(llm.Config{
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		BaseURL:          cfg.LLMBaseURL,
		FallbackProvider: cfg.LLMFallbackProvider,
		FallbackModel:    cfg.LLMFallbackModel,
		FallbackBaseURL:  cfg.LLMFallbackBaseURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
		Stream:           cfg.LLMStream,
		Timeout:          cfg.LLMTimeout,
	}, logger)
	if err != nil {
		return Deps{}, fmt.Errorf("llm provider: %w", err)
	}
	searcher, err := search.NewProvider(search.Config{
		Provider:    cfg.SearchProvider,
		SerpAPIKey:  cfg.SerpAPIKey,
		MaxResults:  cfg.SearchMaxResults,
		RatePerSec:  cfg.SearchRatePerSec,
		DenyDomains: cfg.SearchDenyDomains,
		DenyFile:    cfg.SearchDenyFile,
		Timeout:     cfg.FetchTimeout,
	})
	if err != nil {
		return Deps{}, fmt.Errorf("search provider: %w", err)
	}
	fetcher := web.NewFetcher(web.FetcherConfig{
		Timeout:     cfg.FetchTimeout,
		MaxBytes:    cfg.FetchMaxBytes,
		InsecureTLS: cfg.FetchInsecureTLS,
	})
	return Deps{Provider: provider, Searcher: searcher, Fetcher: fetcher, Logger: logger}, nil
}

// QuestionOptions carry what is scoped to a single question.
type QuestionOptions struct {
	Seen     navigator.SeenCache
	Observer navigator.Observer
	Answerer []AnswererOption
}

// NewQuestionAnswerer wires a navigator, finder and answerer for one question.
func NewQuestionAnswerer(cfg config.Config, deps Deps, opts QuestionOptions) *Answerer {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	slowModel := cfg.NavSlowModel
	if slowModel == "" {
		slowModel = cfg.LLMModel
	}
	fastModel := cfg.NavFastModel
	if fastModel == "" {
		fastModel = slowModel
	}

	navOpts := []navigator.Option{
		navigator.WithLogger(logger),
		navigator.WithMetrics(deps.Metrics),
		navigator.WithObserver(opts.Observer),
	}
	if opts.Seen != nil {
		navOpts = append(navOpts, navigator.WithSeenCache(opts.Seen))
	}
	if cfg.NavJudgePDF {
		judge := navigator.NewJudge(deps.Provider, pdftext.NewTokenCounter(""), navigator.JudgeConfig{
			Model:      slowModel,
			MaxTokens:  cfg.PDFMaxTokens,
			CharWindow: cfg.PDFCharWindow,
		})
		navOpts = append(navOpts, navigator.WithJudge(judge))
	}
	if strings.EqualFold(cfg.NavDispatch, DispatchRendezvous) {
		table := deps.Table
		if table == nil {
			table = rendezvous.NewTable(0, logger)
		}
		navOpts = append(navOpts, navigator.WithDispatcher(navigator.NewRendezvousDispatcher(table)))
	}

	nav := navigator.New(navigator.Config{
		Alias:          cfg.AgentAlias,
		MaxDepth:       cfg.NavMaxDepth,
		MaxRetries:     cfg.NavMaxRetries,
		FastModel:      fastModel,
		SlowModel:      slowModel,
		MismatchPolicy: navigator.ParseMismatchPolicy(cfg.NavMismatchPolicy),
	}, deps.Provider, deps.Searcher, deps.Fetcher, navOpts...)

	finder := NewFinder(deps.Provider, nav, FinderConfig{
		Model:      slowModel,
		MaxRetries: cfg.FinderMaxRetries,
	}, logger)
	return NewAnswerer(deps.Provider, finder, AnswererConfig{
		Model:         slowModel,
		CheckModel:    fastModel,
		MaxResearches: cfg.MaxResearches,
	}, logger, opts.Answerer...)
}
