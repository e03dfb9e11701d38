package navigator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/classify"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/conversation"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/pdftext"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/search"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/web"
)

const (
	DefaultAlias      = "BROWSING_AGENT"
	DefaultMaxDepth   = 7
	DefaultMaxRetries = 3

	tracerName = "github.com/Keyring-Network/keyring-gavryn/seeker/internal/navigator"
)

type Fetcher interface {
	Get(ctx context.Context, rawURL string) (web.Response, error)
}

type MismatchPolicy string

const (
	MismatchRetry MismatchPolicy = "retry"
	MismatchAbort MismatchPolicy = "abort"
)

func ParseMismatchPolicy(raw string) MismatchPolicy {
	if strings.EqualFold(strings.TrimSpace(raw), string(MismatchAbort)) {
		return MismatchAbort
	}
	return MismatchRetry
}

type Config struct {
	Alias          string
	MaxDepth       int
	MaxRetries     int
	FastModel      string
	SlowModel      string
	MismatchPolicy MismatchPolicy
}

// Result is the terminal outcome of one step. Failed results carry the verdict message in Content.
type Result struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Kind    Kind   `json:"kind,omitempty"`
	NodeID  string `json:"node_id,omitempty"`
	PageURL string `json:"page_url,omitempty"`
}

func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Kind: r.Kind, Message: r.Content}
}

type Option func(*Navigator)

func WithJudge(judge *Judge) Option {
	return func(n *Navigator) { n.judge = judge }
}

func WithSeenCache(seen SeenCache) Option {
	return func(n *Navigator) { n.seen = seen }
}

func WithDispatcher(dispatcher Dispatcher) Option {
	return func(n *Navigator) {
		if dispatcher != nil {
			n.dispatcher = dispatcher
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(n *Navigator) {
		if observer != nil {
			n.observer = observer
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(n *Navigator) { n.metrics = metrics }
}

func WithLogger(logger *zap.Logger) Option {
	return func(n *Navigator) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(n *Navigator) {
		if tracer != nil {
			n.tracer = tracer
		}
	}
}

// Navigator searches and follows links until it reaches a PDF, backtracking on dead ends.
type Navigator struct {
	cfg         Config
	provider    llm.Provider
	searcher    search.Provider
	fetcher     Fetcher
	judge       *Judge
	seen        SeenCache
	dispatcher  Dispatcher
	observer    Observer
	metrics     *Metrics
	tracer      trace.Tracer
	logger      *zap.Logger
	extractText func([]byte) (string, error)
	now         func() time.Time
}

func New(cfg Config, provider llm.Provider, searcher search.Provider, fetcher Fetcher, opts ...Option) *Navigator {
	if strings.TrimSpace(cfg.Alias) == "" {
		cfg.Alias = DefaultAlias
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MismatchPolicy == "" {
		cfg.MismatchPolicy = MismatchRetry
	}
	n := &Navigator{
		cfg:         cfg,
		provider:    provider,
		searcher:    searcher,
		fetcher:     fetcher,
		seen:        NewMemorySeen(),
		dispatcher:  DirectDispatcher{},
		observer:    nopObserver{},
		tracer:      otel.Tracer(tracerName),
		logger:      zap.NewNop(),
		extractText: pdftext.Extract,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Navigator) Alias() string {
	return n.cfg.Alias
}

// Navigate runs the leaf's request with the configured budgets.
func (n *Navigator) Navigate(ctx context.Context, tree *conversation.Tree, leafID string) Result {
	result := n.Step(ctx, tree, leafID, n.cfg.MaxDepth, n.cfg.MaxRetries)
	n.metrics.observeResult(result)
	return result
}

// Step is one controller invocation with explicit depth and retry budgets.
func (n *Navigator) Step(ctx context.Context, tree *conversation.Tree, leafID string, depth int, retries int) Result {
	ctx, span := n.tracer.Start(ctx, "navigator.step", trace.WithAttributes(
		attribute.Int("navigator.depth", depth),
		attribute.Int("navigator.retries", retries),
	))
	defer span.End()

	result := n.step(ctx, tree, leafID, depth, retries)
	span.SetAttributes(
		attribute.Bool("navigator.success", result.Success),
		attribute.String("navigator.kind", string(result.Kind)),
	)
	if !result.Success {
		span.SetStatus(codes.Error, string(result.Kind))
	}
	return result
}

func (n *Navigator) step(ctx context.Context, tree *conversation.Tree, leafID string, depth int, retries int) Result {
	n.emit(ctx, StepEvent{State: StateChooseQueryOrURL, NodeID: leafID, Depth: depth, Retries: retries})
	if depth <= 0 || retries <= 0 {
		return n.fail(ctx, tree, leafID, depth, retries, newError(KindTooManySteps, ExhaustedMessage))
	}
	if err := ctx.Err(); err != nil {
		return n.fail(ctx, tree, leafID, depth, retries, newError(KindContentNotFound, "navigation stopped: %v", err))
	}
	chain, err := tree.Ancestors(leafID)
	if err != nil {
		return n.fail(ctx, tree, leafID, depth, retries, newError(KindContentNotFound, "%v", err))
	}
	leaf := chain[len(chain)-1]
	tried := CollectTriedURLs(chain, n.cfg.Alias)
	request := strings.TrimSpace(leaf.Content)

	var header, promptContext string
	if classify.IsValidURL(request) {
		n.emit(ctx, StepEvent{State: StateFetch, NodeID: leafID, Depth: depth, Retries: retries, URL: request})
		page, err := n.fetch(ctx, request)
		if err != nil {
			return n.fail(ctx, tree, leafID, depth, retries, err)
		}
		kind := classify.ContentType(page.ContentType)
		n.emit(ctx, StepEvent{State: StateClassify, NodeID: leafID, Depth: depth, Retries: retries, URL: request, Message: kind.String()})
		switch kind {
		case classify.KindPDF:
			return n.readPDF(ctx, tree, leafID, request, page.Body, chain, depth, retries)
		case classify.KindHTML:
			baseURL := page.FinalURL
			if baseURL == "" {
				baseURL = request
			}
			markdown, err := web.ToMarkdown(string(page.Body), baseURL)
			if err != nil {
				return n.fail(ctx, tree, leafID, depth, retries, newError(KindContentNotFound, "could not read %s: %v", request, err))
			}
			header = pageHeader(n.cfg.Alias)
			promptContext = pageContext(request, StripTriedLinks(markdown, tried))
		default:
			return n.fail(ctx, tree, leafID, depth, retries, newError(KindContentMismatch,
				"Expected a PDF or HTML document but got %s instead.", page.ContentType))
		}
	} else {
		n.emit(ctx, StepEvent{State: StateSearch, NodeID: leafID, Depth: depth, Retries: retries, Request: request})
		results, err := n.searcher.Search(ctx, request)
		if err != nil {
			return n.fail(ctx, tree, leafID, depth, retries, newError(KindContentNotFound, "search failed: %v", err))
		}
		header = searchHeader(n.cfg.Alias)
		promptContext = searchContext(search.ExcludeLinks(results, tried))
	}

	model := n.modelFor(retries)
	n.emit(ctx, StepEvent{State: StateAskModelForNextURL, NodeID: leafID, Depth: depth, Retries: retries, Model: model})
	reply, err := n.provider.Generate(ctx, llm.Request{
		Model:    model,
		Messages: nextURLPrompt(header, renderTrail(chain, n.cfg.Alias), promptContext),
		Stop:     []string{"\n"},
	})
	if err != nil {
		return n.fail(ctx, tree, leafID, depth, retries, newError(KindContentNotFound, "model request failed: %v", err))
	}
	reply = strings.TrimSpace(reply)
	nextURL := classify.CandidateURL(reply)
	if !classify.IsValidURL(nextURL) {
		return n.fail(ctx, tree, leafID, depth, retries, &Error{Kind: KindNotAURL, Message: reply})
	}

	hop, err := tree.Append(leafID, n.cfg.Alias, nextURL, conversation.Attributes{
		Kind:    conversation.KindHop,
		PageURL: nextURL,
		Depth:   depth - 1,
		Retries: retries,
	})
	if err != nil {
		return n.fail(ctx, tree, leafID, depth, retries, newError(KindContentNotFound, "%v", err))
	}
	n.emit(ctx, StepEvent{State: StateRecurse, NodeID: hop.ID, Depth: depth - 1, Retries: retries, URL: nextURL})
	child := n.dispatcher.Dispatch(ctx, func(ctx context.Context) Result {
		return n.Step(ctx, tree, hop.ID, depth-1, retries)
	})
	if child.Success || ctx.Err() != nil {
		return child
	}
	if child.Kind == KindContentMismatch && n.cfg.MismatchPolicy == MismatchAbort {
		return child
	}

	branchFrom := child.NodeID
	if branchFrom == "" {
		branchFrom = hop.ID
	}
	redo, err := tree.Fork(branchFrom, leaf.Sender, leaf.Content, conversation.Attributes{
		Kind:    leaf.Attributes.Kind,
		PageURL: leaf.Attributes.PageURL,
		Depth:   depth,
		Retries: retries - 1,
	})
	if err != nil {
		return child
	}
	n.emit(ctx, StepEvent{
		State:   StateBacktrackRetry,
		NodeID:  redo.ID,
		Depth:   depth,
		Retries: retries - 1,
		Request: request,
		Kind:    child.Kind,
		Message: child.Content,
	})
	return n.dispatcher.Dispatch(ctx, func(ctx context.Context) Result {
		return n.Step(ctx, tree, redo.ID, depth, retries-1)
	})
}

func (n *Navigator) fetch(ctx context.Context, pageURL string) (web.Response, error) {
	start := n.now()
	page, err := n.fetcher.Get(ctx, pageURL)
	n.metrics.observeFetch(n.now().Sub(start).Seconds())
	if err != nil {
		return page, newError(KindContentNotFound, "could not fetch %s: %v", pageURL, err)
	}
	return page, nil
}

func (n *Navigator) readPDF(ctx context.Context, tree *conversation.Tree, leafID string, pageURL string, body []byte, chain []conversation.Node, depth int, retries int) Result {
	text, err := n.extractText(body)
	if err != nil {
		return n.fail(ctx, tree, leafID, depth, retries, newError(KindContentMismatch, "could not read the PDF document at %s: %v", pageURL, err))
	}
	digest := Digest(text)
	if n.seen != nil {
		first, err := n.seen.Claim(ctx, digest)
		if err != nil {
			n.logger.Warn("seen cache unavailable", zap.String("url", pageURL), zap.Error(err))
			first = true
		}
		if !first {
			return n.fail(ctx, tree, leafID, depth, retries, newError(KindContentAlreadySeen, "The PDF document at %s was already checked.", pageURL))
		}
	}

	content := text
	if n.judge != nil {
		snippets, err := n.judge.Snippets(ctx, text, renderUserRequest(chain, n.cfg.Alias))
		if err != nil {
			if n.seen != nil && KindOf(err) != KindContentMismatch {
				if releaseErr := n.seen.Release(context.WithoutCancel(ctx), digest); releaseErr != nil {
					n.logger.Warn("release seen digest", zap.String("url", pageURL), zap.Error(releaseErr))
				}
			}
			return n.fail(ctx, tree, leafID, depth, retries, err)
		}
		content = snippets
	}

	result := Result{Success: true, Content: content, PageURL: pageURL}
	node, err := tree.Append(leafID, n.cfg.Alias, content, conversation.Attributes{
		Kind:      conversation.KindResult,
		Success:   true,
		PageURL:   pageURL,
		PDFDigest: digest,
		Depth:     depth,
		Retries:   retries,
	})
	if err == nil {
		result.NodeID = node.ID
	}
	n.emit(ctx, StepEvent{State: StateSucceed, NodeID: result.NodeID, Depth: depth, Retries: retries, URL: pageURL})
	return result
}

func (n *Navigator) fail(ctx context.Context, tree *conversation.Tree, leafID string, depth int, retries int, err error) Result {
	kind := KindOf(err)
	message := err.Error()
	var navErr *Error
	if errors.As(err, &navErr) {
		message = navErr.Message
	}
	result := Result{Kind: kind, Content: message}
	node, appendErr := tree.Append(leafID, n.cfg.Alias, message, conversation.Attributes{
		Kind:        conversation.KindFailure,
		FailureKind: string(kind),
		Depth:       depth,
		Retries:     retries,
	})
	if appendErr == nil {
		result.NodeID = node.ID
	}
	n.emit(ctx, StepEvent{State: StateFail, NodeID: result.NodeID, Depth: depth, Retries: retries, Kind: kind, Message: message})
	return result
}

// modelFor picks the fast model for the first attempt at a level and the slow one for redos.
func (n *Navigator) modelFor(retries int) string {
	if retries >= n.cfg.MaxRetries && n.cfg.FastModel != "" {
		return n.cfg.FastModel
	}
	return n.cfg.SlowModel
}

func (n *Navigator) emit(ctx context.Context, event StepEvent) {
	event.Time = n.now().UTC()
	n.metrics.observeState(event.State)
	n.logger.Debug("navigator step",
		zap.String("state", string(event.State)),
		zap.String("node_id", event.NodeID),
		zap.Int("depth", event.Depth),
		zap.Int("retries", event.Retries),
		zap.String("url", event.URL),
		zap.String("kind", string(event.Kind)),
	)
	n.observer.OnStep(ctx, event)
}
