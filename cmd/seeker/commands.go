package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/conversation"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/logging"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/navigator"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/research"
)

type answerer interface {
	Answer(ctx context.Context, question string) (research.Answer, error)
}

var (
	newLogger   = logging.New
	newDeps     = research.NewDeps
	newAnswerer = func(cfg config.Config, deps research.Deps, opts research.QuestionOptions) answerer {
		return research.NewQuestionAnswerer(cfg, deps, opts)
	}
)

// rootOptions hold the persistent flags; their defaults come from the environment.
type rootOptions struct {
	cfg            config.Config
	model          string
	fastModel      string
	maxDepth       int
	maxRetries     int
	searchProvider string
	dispatch       string
	logLevel       string
	logFormat      string
}

func (o *rootOptions) config() config.Config {
	cfg := o.cfg
	cfg.LLMModel = o.model
	cfg.NavSlowModel = o.model
	cfg.NavFastModel = o.fastModel
	cfg.NavMaxDepth = o.maxDepth
	cfg.NavMaxRetries = o.maxRetries
	cfg.SearchProvider = strings.ToLower(o.searchProvider)
	cfg.NavDispatch = strings.ToLower(o.dispatch)
	cfg.LogLevel = o.logLevel
	cfg.LogFormat = o.logFormat
	return cfg
}

// session builds the shared collaborators for one command invocation.
func (o *rootOptions) session() (config.Config, research.Deps, *zap.Logger, error) {
	cfg := o.config()
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, research.Deps{}, nil, err
	}
	deps, err := newDeps(cfg, logger)
	if err != nil {
		return cfg, research.Deps{}, logger, err
	}
	return cfg, deps, logger, nil
}

func newRootCmd(cfg config.Config) *cobra.Command {
	opts := &rootOptions{cfg: cfg}
	root := &cobra.Command{
		Use:           "seeker",
		Short:         "Answer research questions by navigating the web for PDFs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	slowModel := cfg.NavSlowModel
	if slowModel == "" {
		slowModel = cfg.LLMModel
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.model, "model", slowModel, "model for navigation decisions and answers")
	flags.StringVar(&opts.fastModel, "fast-model", cfg.NavFastModel, "model for cheap checks")
	flags.IntVar(&opts.maxDepth, "max-depth", cfg.NavMaxDepth, "forward hops allowed per search")
	flags.IntVar(&opts.maxRetries, "max-retries", cfg.NavMaxRetries, "retries allowed per step")
	flags.StringVar(&opts.searchProvider, "search-provider", cfg.SearchProvider, "serpapi or duckduckgo")
	flags.StringVar(&opts.dispatch, "dispatch", cfg.NavDispatch, "direct or rendezvous")
	flags.StringVar(&opts.logLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", cfg.LogFormat, "json or console")

	root.AddCommand(newAskCmd(opts), newBatchCmd(opts))
	return root
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var asJSON, showTrail bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question required")
			}
			cfg, deps, logger, err := opts.session()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			stderr := cmd.ErrOrStderr()
			answer, err := newAnswerer(cfg, deps, research.QuestionOptions{
				Observer: stepLogger(logger),
				Answerer: []research.AnswererOption{research.WithProgress(func(p research.Progress) {
					fmt.Fprintln(stderr, p.Message)
				})},
			}).Answer(cmd.Context(), question)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if !showTrail {
					answer.Trail = nil
				}
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(answer)
			}
			fmt.Fprintln(out, answer.Text)
			if showTrail {
				printTrail(out, answer.Trail)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the structured answer")
	cmd.Flags().BoolVar(&showTrail, "trail", false, "print the navigation trail")
	return cmd
}

type batchLine struct {
	Question    string `json:"question"`
	Answer      string `json:"answer,omitempty"`
	FinalAnswer string `json:"final_answer,omitempty"`
	Answered    bool   `json:"answered"`
	Rounds      int    `json:"rounds"`
	Error       string `json:"error,omitempty"`
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "batch <file|->",
		Short: "Answer one question per line, printing JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			questions, err := readQuestions(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if len(questions) == 0 {
				return errors.New("no questions")
			}
			cfg, deps, logger, err := opts.session()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			outcomes, runErr := research.AnswerAll(cmd.Context(), questions, concurrency, func(ctx context.Context, question string) (research.Answer, error) {
				questionLogger := logger.With(zap.String("question", question))
				return newAnswerer(cfg, deps, research.QuestionOptions{Observer: stepLogger(questionLogger)}).Answer(ctx, question)
			})

			encoder := json.NewEncoder(cmd.OutOrStdout())
			for i, outcome := range outcomes {
				line := batchLine{
					Question:    questions[i],
					Answer:      outcome.Answer.Text,
					FinalAnswer: outcome.Answer.Final,
					Answered:    outcome.Answer.Answered,
					Rounds:      outcome.Answer.Rounds,
				}
				if outcome.Err != nil {
					line.Error = outcome.Err.Error()
				}
				if err := encoder.Encode(line); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "questions answered in parallel")
	return cmd
}

func readQuestions(stdin io.Reader, path string) ([]string, error) {
	reader := stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		reader = file
	}
	var questions []string
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	return questions, scanner.Err()
}

func stepLogger(logger *zap.Logger) navigator.Observer {
	return navigator.ObserverFunc(func(_ context.Context, step navigator.StepEvent) {
		fields := []zap.Field{
			zap.String("state", string(step.State)),
			zap.Int("depth", step.Depth),
			zap.Int("retries", step.Retries),
		}
		if step.URL != "" {
			fields = append(fields, zap.String("url", step.URL))
		}
		if step.Kind != navigator.KindNone {
			fields = append(fields, zap.String("kind", string(step.Kind)))
		}
		logger.Debug("navigator step", fields...)
	})
}

// printTrail prints nodes indented by their distance from the root.
func printTrail(out io.Writer, nodes []conversation.Node) {
	depth := map[string]int{}
	for _, node := range nodes {
		level := 0
		if node.ParentID != "" {
			level = depth[node.ParentID] + 1
		}
		depth[node.ID] = level
		content := strings.ReplaceAll(node.Content, "\n", " ")
		if len(content) > 120 {
			content = content[:117] + "..."
		}
		kind := string(node.Attributes.Kind)
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(out, "%s%s [%s] %s\n", strings.Repeat("  ", level), node.Sender, kind, content)
	}
}
