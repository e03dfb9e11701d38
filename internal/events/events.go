package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/navigator"
)

const (
	TypeQuestionStarted   = "question.started"
	TypeNavigatorStep     = "navigator.step"
	TypeQuestionAnswered  = "question.answered"
	TypeQuestionFailed    = "question.failed"
	TypeQuestionCancelled = "question.cancelled"
)

type QuestionEvent struct {
	QuestionID string         `json:"question_id"`
	Seq        int64          `json:"seq"`
	Type       string         `json:"type"`
	Ts         string         `json:"ts"`
	Source     string         `json:"source"`
	TraceID    string         `json:"trace_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

func NormalizeType(eventType string) string {
	return strings.ReplaceAll(strings.TrimSpace(strings.ToLower(eventType)), "_", ".")
}

// FromStep converts a navigator step into a navigator.step event. Seq is assigned by the store.
func FromStep(questionID string, step navigator.StepEvent) QuestionEvent {
	payload := map[string]any{
		"state":   string(step.State),
		"node_id": step.NodeID,
		"depth":   step.Depth,
		"retries": step.Retries,
	}
	if step.Request != "" {
		payload["request"] = step.Request
	}
	if step.URL != "" {
		payload["url"] = step.URL
	}
	if step.Kind != navigator.KindNone {
		payload["kind"] = string(step.Kind)
	}
	if step.Message != "" {
		payload["message"] = step.Message
	}
	if step.Model != "" {
		payload["model"] = step.Model
	}
	ts := step.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return QuestionEvent{
		QuestionID: questionID,
		Type:       TypeNavigatorStep,
		Ts:         ts.UTC().Format(time.RFC3339Nano),
		Source:     "navigator",
		Payload:    payload,
	}
}

type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan QuestionEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan QuestionEvent]struct{}{},
	}
}

func (b *Broker) Subscribe(ctx context.Context, questionID string) <-chan QuestionEvent {
	ch := make(chan QuestionEvent, 16)

	b.mu.Lock()
	if b.subscribers[questionID] == nil {
		b.subscribers[questionID] = map[chan QuestionEvent]struct{}{}
	}
	b.subscribers[questionID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[questionID] != nil {
			delete(b.subscribers[questionID], ch)
			if len(b.subscribers[questionID]) == 0 {
				delete(b.subscribers, questionID)
			}
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (b *Broker) Publish(event QuestionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers[event.QuestionID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Broker) Subscribers(questionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[questionID])
}
