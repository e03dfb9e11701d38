package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/conversation"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/navigator"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store"
)

type questionAnswerer interface {
	Answer(ctx context.Context, question string) (research.Answer, error)
}

var (
	newQuestionAnswerer = func(cfg config.Config, deps research.Deps, opts research.QuestionOptions) questionAnswerer {
		return research.NewQuestionAnswerer(cfg, deps, opts)
	}
	marshalJSON = json.Marshal
)

// AnswerCallback is the body the worker posts to /questions/{id}/answer. A non-empty Error marks a failed question.
type AnswerCallback struct {
	Token       string `json:"token,omitempty"`
	Answer      string `json:"answer,omitempty"`
	FinalAnswer string `json:"final_answer,omitempty"`
	Answered    bool   `json:"answered"`
	Rounds      int    `json:"rounds"`
	Error       string `json:"error,omitempty"`
}

type TrailUpload struct {
	Nodes []conversation.Node `json:"nodes"`
}

type QuestionActivities struct {
	store          store.Store
	cfg            config.Config
	deps           research.Deps
	seen           func(questionID string) navigator.SeenCache
	controlPlane   string
	httpClient     *http.Client
	requestTimeout time.Duration
	logger         *zap.Logger
}

type QuestionActivitiesOption func(*QuestionActivities)

// WithSeenFactory scopes a seen-content cache to each question, e.g. a Redis key prefix.
func WithSeenFactory(fn func(questionID string) navigator.SeenCache) QuestionActivitiesOption {
	return func(a *QuestionActivities) {
		a.seen = fn
	}
}

func WithHTTPClient(client *http.Client) QuestionActivitiesOption {
	return func(a *QuestionActivities) {
		if client != nil {
			a.httpClient = client
		}
	}
}

func WithLogger(logger *zap.Logger) QuestionActivitiesOption {
	return func(a *QuestionActivities) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewQuestionActivities(store store.Store, cfg config.Config, deps research.Deps, opts ...QuestionActivitiesOption) *QuestionActivities {
	activities := &QuestionActivities{
		store:          store,
		cfg:            cfg,
		deps:           deps,
		controlPlane:   strings.TrimRight(cfg.ControlPlaneURL, "/"),
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		requestTimeout: 10 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(activities)
		}
	}
	if activities.deps.Logger == nil {
		activities.deps.Logger = activities.logger
	}
	return activities
}

func (a *QuestionActivities) AnswerQuestion(ctx context.Context, input QuestionInput) (AnswerOutput, error) {
	questionID := strings.TrimSpace(input.QuestionID)
	if questionID == "" {
		return AnswerOutput{}, errors.New("question_id required")
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return AnswerOutput{}, errors.New("question required")
	}
	logger := a.logger.With(zap.String("question_id", questionID))

	if err := a.emitEvent(ctx, questionID, events.TypeQuestionStarted, "worker", map[string]any{"question": question}); err != nil {
		logger.Warn("record question start", zap.Error(err))
	}
	observer := navigator.ObserverFunc(func(_ context.Context, step navigator.StepEvent) {
		event := events.FromStep(questionID, step)
		if err := a.emitEvent(ctx, questionID, event.Type, event.Source, event.Payload); err != nil {
			logger.Warn("record navigator step", zap.String("state", string(step.State)), zap.Error(err))
		}
	})
	opts := research.QuestionOptions{Observer: observer}
	if a.seen != nil {
		opts.Seen = a.seen(questionID)
	}

	answer, err := newQuestionAnswerer(a.cfg, a.deps, opts).Answer(ctx, question)
	if err != nil {
		return AnswerOutput{}, err
	}
	if err := a.archiveTrail(ctx, questionID, answer.Trail); err != nil {
		logger.Warn("archive trail", zap.Error(err))
	}

	output := AnswerOutput{
		Answer:      answer.Text,
		FinalAnswer: answer.Final,
		Answered:    answer.Answered,
		Rounds:      answer.Rounds,
	}
	callback := AnswerCallback{
		Token:       input.Token,
		Answer:      output.Answer,
		FinalAnswer: output.FinalAnswer,
		Answered:    output.Answered,
		Rounds:      output.Rounds,
	}
	if err := a.postAnswer(ctx, questionID, callback); err != nil {
		logger.Warn("post answer to control plane", zap.Error(err))
		if localErr := a.appendLocalEvent(ctx, questionID, events.TypeQuestionAnswered, "worker", answeredPayload(callback)); localErr != nil {
			return output, localErr
		}
	}
	return output, nil
}

func (a *QuestionActivities) HandleQuestionFailure(ctx context.Context, input QuestionFailureInput) error {
	if strings.TrimSpace(input.QuestionID) == "" {
		return errors.New("question_id required")
	}
	detail := strings.TrimSpace(input.Error)
	if detail == "" {
		detail = "unknown workflow activity error"
	}
	if err := a.postAnswer(ctx, input.QuestionID, AnswerCallback{Token: input.Token, Error: detail}); err == nil {
		return nil
	}
	return a.appendLocalEvent(ctx, input.QuestionID, events.TypeQuestionFailed, "worker", map[string]any{"error": detail})
}

func answeredPayload(callback AnswerCallback) map[string]any {
	return map[string]any{
		"answer":       callback.Answer,
		"final_answer": callback.FinalAnswer,
		"answered":     callback.Answered,
		"rounds":       callback.Rounds,
	}
}

func (a *QuestionActivities) archiveTrail(ctx context.Context, questionID string, nodes []conversation.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	if err := a.postJSON(ctx, fmt.Sprintf("/questions/%s/trail", questionID), TrailUpload{Nodes: nodes}); err == nil {
		return nil
	}
	return a.store.AppendTrail(ctx, questionID, store.TrailFromNodes(questionID, nodes))
}

func (a *QuestionActivities) postAnswer(ctx context.Context, questionID string, callback AnswerCallback) error {
	return a.postJSON(ctx, fmt.Sprintf("/questions/%s/answer", questionID), callback)
}

func (a *QuestionActivities) emitEvent(ctx context.Context, questionID string, eventType string, source string, payload map[string]any) error {
	if err := a.postEvent(ctx, questionID, eventType, source, payload); err == nil {
		return nil
	}
	return a.appendLocalEvent(ctx, questionID, eventType, source, payload)
}

func (a *QuestionActivities) appendLocalEvent(ctx context.Context, questionID string, eventType string, source string, payload map[string]any) error {
	seq, err := a.store.NextSeq(ctx, questionID)
	if err != nil {
		return err
	}
	return a.store.AppendEvent(ctx, store.QuestionEvent{
		QuestionID: questionID,
		Seq:        seq,
		Type:       eventType,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Source:     source,
		TraceID:    uuid.New().String(),
		Payload:    payload,
	})
}

func (a *QuestionActivities) postEvent(ctx context.Context, questionID string, eventType string, source string, payload map[string]any) error {
	return a.postJSON(ctx, fmt.Sprintf("/questions/%s/events", questionID), map[string]any{
		"type":      eventType,
		"source":    source,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"trace_id":  uuid.New().String(),
		"payload":   payload,
	})
}

func (a *QuestionActivities) postJSON(ctx context.Context, path string, value any) error {
	if a.controlPlane == "" {
		return errors.New("control plane url not configured")
	}
	body, err := marshalJSON(value)
	if err != nil {
		return err
	}
	requestCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, a.controlPlane+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("control plane request failed: %s", resp.Status)
	}
	return nil
}
