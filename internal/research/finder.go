package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/conversation"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/navigator"
)

const (
	DefaultFinderAlias      = "PDF_FINDER"
	DefaultFinderMaxRetries = 3
)

type Navigator interface {
	Navigate(ctx context.Context, tree *conversation.Tree, leafID string) navigator.Result
}

type FinderConfig struct {
	Alias      string
	Model      string
	MaxRetries int
}

type Finding struct {
	Query    string           `json:"query"`
	Attempts int              `json:"attempts"`
	Result   navigator.Result `json:"result"`
}

type Findings struct {
	Queries  []string  `json:"queries"`
	Findings []Finding `json:"findings"`
}

// Texts returns what every query produced, failures included, in query order.
func (f Findings) Texts() []string {
	texts := make([]string, 0, len(f.Findings))
	for _, finding := range f.Findings {
		if content := strings.TrimSpace(finding.Result.Content); content != "" {
			texts = append(texts, content)
		}
	}
	return texts
}

func (f Findings) Succeeded() int {
	count := 0
	for _, finding := range f.Findings {
		if finding.Result.Success {
			count++
		}
	}
	return count
}

// Finder turns a question into PDF search queries and runs the navigator for each of them.
type Finder struct {
	provider llm.Provider
	nav      Navigator
	cfg      FinderConfig
	logger   *zap.Logger
}

func NewFinder(provider llm.Provider, nav Navigator, cfg FinderConfig, logger *zap.Logger) *Finder {
	if strings.TrimSpace(cfg.Alias) == "" {
		cfg.Alias = DefaultFinderAlias
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultFinderMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{provider: provider, nav: nav, cfg: cfg, logger: logger}
}

func (f *Finder) Find(ctx context.Context, tree *conversation.Tree, leafID string) (Findings, error) {
	chain, err := tree.Ancestors(leafID)
	if err != nil {
		return Findings{}, err
	}
	reply, err := f.provider.Generate(ctx, llm.Request{
		Model:    f.cfg.Model,
		Messages: finderPrompt(f.cfg.Alias, renderConversation(chain)),
	})
	if err != nil {
		return Findings{}, fmt.Errorf("plan search queries: %w", err)
	}
	queries := ParseQueries(reply)
	f.logger.Info("search queries planned", zap.Strings("queries", queries))

	findings := Findings{Queries: queries, Findings: make([]Finding, 0, len(queries))}
	for _, query := range queries {
		finding, err := f.runQuery(ctx, tree, leafID, query)
		if err != nil {
			return findings, err
		}
		findings.Findings = append(findings.Findings, finding)
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
	}
	return findings, nil
}

// runQuery retries a query from the last failure so the navigator sees what was already tried.
func (f *Finder) runQuery(ctx context.Context, tree *conversation.Tree, leafID string, query string) (Finding, error) {
	finding := Finding{Query: query}
	branchFrom := leafID
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		var node conversation.Node
		var err error
		attrs := conversation.Attributes{Kind: conversation.KindQuery}
		if attempt == 1 {
			node, err = tree.Append(branchFrom, f.cfg.Alias, query, attrs)
		} else {
			node, err = tree.Fork(branchFrom, f.cfg.Alias, query, attrs)
		}
		if err != nil {
			return finding, err
		}
		finding.Attempts = attempt
		finding.Result = f.nav.Navigate(ctx, tree, node.ID)
		if finding.Result.Success || ctx.Err() != nil {
			break
		}
		f.logger.Info("navigation attempt failed",
			zap.String("query", query),
			zap.Int("attempt", attempt),
			zap.String("kind", string(finding.Result.Kind)),
		)
		if finding.Result.NodeID != "" {
			branchFrom = finding.Result.NodeID
		}
	}
	return finding, nil
}
