package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateQuestion(ctx context.Context, question store.Question) error {
	args := m.Called(ctx, question)
	return args.Error(0)
}

func (m *MockStore) GetQuestion(ctx context.Context, questionID string) (*store.Question, error) {
	args := m.Called(ctx, questionID)
	if value := args.Get(0); value != nil {
		return value.(*store.Question), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) ListQuestions(ctx context.Context) ([]store.Question, error) {
	args := m.Called(ctx)
	var result []store.Question
	if value := args.Get(0); value != nil {
		result = value.([]store.Question)
	}
	return result, args.Error(1)
}

func (m *MockStore) UpdateQuestion(ctx context.Context, question store.Question) error {
	args := m.Called(ctx, question)
	return args.Error(0)
}

func (m *MockStore) DeleteQuestion(ctx context.Context, questionID string) error {
	args := m.Called(ctx, questionID)
	return args.Error(0)
}

func (m *MockStore) AppendTrail(ctx context.Context, questionID string, nodes []store.TrailNode) error {
	args := m.Called(ctx, questionID, nodes)
	return args.Error(0)
}

func (m *MockStore) ListTrail(ctx context.Context, questionID string) ([]store.TrailNode, error) {
	args := m.Called(ctx, questionID)
	var result []store.TrailNode
	if value := args.Get(0); value != nil {
		result = value.([]store.TrailNode)
	}
	return result, args.Error(1)
}

func (m *MockStore) AppendEvent(ctx context.Context, event store.QuestionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStore) ListEvents(ctx context.Context, questionID string, afterSeq int64) ([]store.QuestionEvent, error) {
	args := m.Called(ctx, questionID, afterSeq)
	var result []store.QuestionEvent
	if value := args.Get(0); value != nil {
		result = value.([]store.QuestionEvent)
	}
	return result, args.Error(1)
}

func (m *MockStore) NextSeq(ctx context.Context, questionID string) (int64, error) {
	args := m.Called(ctx, questionID)
	return args.Get(0).(int64), args.Error(1)
}

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Publish(event events.QuestionEvent) {
	m.Called(event)
}

func (m *MockBroker) Subscribe(ctx context.Context, questionID string) <-chan events.QuestionEvent {
	args := m.Called(ctx, questionID)
	if value := args.Get(0); value != nil {
		if ch, ok := value.(chan events.QuestionEvent); ok {
			return ch
		}
		if ch, ok := value.(<-chan events.QuestionEvent); ok {
			return ch
		}
	}
	return nil
}

type MockWorkflowService struct {
	mock.Mock
}

func (m *MockWorkflowService) StartQuestion(ctx context.Context, questionID string, question string, token string) error {
	args := m.Called(ctx, questionID, question, token)
	return args.Error(0)
}

func (m *MockWorkflowService) CancelQuestion(ctx context.Context, questionID string) error {
	args := m.Called(ctx, questionID)
	return args.Error(0)
}

func newTestServer(t *testing.T, store store.Store, broker Broker, workflows WorkflowService, cfg config.Config, opts ...ServerOption) *httptest.Server {
	t.Helper()
	server := NewServer(store, broker, workflows, cfg, opts...)
	return httptest.NewServer(server.Router())
}
