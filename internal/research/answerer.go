package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/conversation"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/llm"
)

const (
	DefaultAnswererAlias = "ANSWERER"
	DefaultMaxResearches = 2
	UserSender           = "USER"
)

var ErrEmptyQuestion = errors.New("question is required")

type AnswererConfig struct {
	Alias         string
	Model         string
	CheckModel    string
	MaxResearches int
}

type Answer struct {
	Question string              `json:"question"`
	Text     string              `json:"text"`
	Final    string              `json:"final"`
	Rounds   int                 `json:"rounds"`
	Answered bool                `json:"answered"`
	Findings []Findings          `json:"findings"`
	Trail    []conversation.Node `json:"trail,omitempty"`
}

type Progress struct {
	Round   int    `json:"round"`
	Message string `json:"message"`
}

type AnswererOption func(*Answerer)

// WithTrailObserver is called for every node appended while answering.
func WithTrailObserver(fn func(conversation.Node)) AnswererOption {
	return func(a *Answerer) { a.onNode = fn }
}

func WithProgress(fn func(Progress)) AnswererOption {
	return func(a *Answerer) { a.onProgress = fn }
}

type finder interface {
	Find(ctx context.Context, tree *conversation.Tree, leafID string) (Findings, error)
}

// Answerer alternates PDF research rounds with answer attempts until the answer looks complete.
type Answerer struct {
	provider   llm.Provider
	finder     finder
	cfg        AnswererConfig
	logger     *zap.Logger
	onNode     func(conversation.Node)
	onProgress func(Progress)
}

func NewAnswerer(provider llm.Provider, f *Finder, cfg AnswererConfig, logger *zap.Logger, opts ...AnswererOption) *Answerer {
	return newAnswerer(provider, f, cfg, logger, opts...)
}

func newAnswerer(provider llm.Provider, f finder, cfg AnswererConfig, logger *zap.Logger, opts ...AnswererOption) *Answerer {
	if strings.TrimSpace(cfg.Alias) == "" {
		cfg.Alias = DefaultAnswererAlias
	}
	if cfg.MaxResearches <= 0 {
		cfg.MaxResearches = DefaultMaxResearches
	}
	if cfg.CheckModel == "" {
		cfg.CheckModel = cfg.Model
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Answerer{provider: provider, finder: f, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Answerer) Answer(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	tree := conversation.NewTree()
	if a.onNode != nil {
		tree.OnAppend(a.onNode)
	}
	root := tree.Root(UserSender, question, conversation.Attributes{Kind: conversation.KindQuery})
	answer := Answer{Question: question}
	var found []string

	for round := 1; round <= a.cfg.MaxResearches; round++ {
		leafID := root.ID
		if len(found) > 0 {
			contextNode, err := tree.Append(root.ID, a.cfg.Alias, foundSoFarHeader+strings.Join(found, "\n\n"),
				conversation.Attributes{Kind: conversation.KindQuery})
			if err != nil {
				return answer, err
			}
			leafID = contextNode.ID
		}

		findings, err := a.finder.Find(ctx, tree, leafID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return answer, ctxErr
		}
		if err != nil {
			a.logger.Warn("research round failed", zap.Int("round", round), zap.Error(err))
			found = append(found, fmt.Sprintf("Research failed: %v", err))
		} else {
			found = append(found, findings.Texts()...)
		}
		answer.Findings = append(answer.Findings, findings)

		text, err := a.provider.Generate(ctx, llm.Request{Model: a.cfg.Model, Messages: answerPrompt(found, question)})
		if err != nil {
			return answer, fmt.Errorf("generate answer: %w", err)
		}
		answer.Text = text
		answer.Rounds = round
		if _, err := tree.Append(root.ID, a.cfg.Alias, text, conversation.Attributes{Kind: conversation.KindAnswer}); err != nil {
			return answer, err
		}
		a.progress(Progress{Round: round, Message: text})

		if round == a.cfg.MaxResearches {
			break
		}
		verdict, err := a.provider.Generate(ctx, llm.Request{Model: a.cfg.CheckModel, Messages: checkPrompt(question, text)})
		if err != nil {
			a.logger.Warn("answer check failed", zap.Int("round", round), zap.Error(err))
		} else if wasAnswered(verdict) {
			answer.Answered = true
			break
		}
		a.progress(Progress{Round: round, Message: moreResearch})
	}

	answer.Final = FinalAnswer(answer.Text)
	answer.Trail = tree.Nodes()
	return answer, nil
}

func (a *Answerer) progress(p Progress) {
	if a.onProgress != nil {
		a.onProgress(p)
	}
}

type Outcome struct {
	Answer Answer `json:"answer"`
	Err    error  `json:"-"`
}

// AnswerAll answers independent questions with at most concurrency in flight. Per-question
// errors are reported in the outcome; only cancellation fails the batch.
func AnswerAll(ctx context.Context, questions []string, concurrency int, answer func(ctx context.Context, question string) (Answer, error)) ([]Outcome, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	outcomes := make([]Outcome, len(questions))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i, question := range questions {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				outcomes[i] = Outcome{Answer: Answer{Question: question}, Err: err}
				return err
			}
			result, err := answer(groupCtx, question)
			outcomes[i] = Outcome{Answer: result, Err: err}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, ctx.Err()
}
