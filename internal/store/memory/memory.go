package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store"
)

type MemoryStore struct {
	mu        sync.RWMutex
	questions map[string]store.Question
	trail     map[string][]store.TrailNode
	events    map[string][]store.QuestionEvent
	seq       map[string]int64
}

func New() *MemoryStore {
	return &MemoryStore{
		questions: map[string]store.Question{},
		trail:     map[string][]store.TrailNode{},
		events:    map[string][]store.QuestionEvent{},
		seq:       map[string]int64{},
	}
}

func (m *MemoryStore) CreateQuestion(ctx context.Context, question store.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(question.Status) == "" {
		question.Status = store.StatusQueued
	}
	m.questions[question.ID] = question
	return nil
}

func (m *MemoryStore) GetQuestion(ctx context.Context, questionID string) (*store.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	question, ok := m.questions[questionID]
	if !ok {
		return nil, nil
	}
	return &question, nil
}

func (m *MemoryStore) ListQuestions(ctx context.Context) ([]store.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.Question, 0, len(m.questions))
	for _, question := range m.questions {
		results = append(results, question)
	}
	sort.Slice(results, func(i, j int) bool {
		left := parseTime(results[i].UpdatedAt)
		right := parseTime(results[j].UpdatedAt)
		if left.Equal(right) {
			return results[i].ID < results[j].ID
		}
		return left.After(right)
	})
	return results, nil
}

func (m *MemoryStore) UpdateQuestion(ctx context.Context, question store.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[question.ID]; !ok {
		return nil
	}
	m.questions[question.ID] = question
	return nil
}

func (m *MemoryStore) DeleteQuestion(ctx context.Context, questionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.questions, questionID)
	delete(m.trail, questionID)
	delete(m.events, questionID)
	delete(m.seq, questionID)
	return nil
}

// AppendTrail stores nodes in order, replacing any node whose ID was already archived.
func (m *MemoryStore) AppendTrail(ctx context.Context, questionID string, nodes []store.TrailNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.trail[questionID]
	index := make(map[string]int, len(existing))
	for idx, node := range existing {
		index[node.ID] = idx
	}
	for _, node := range nodes {
		node.QuestionID = questionID
		node.Attributes = cloneMap(node.Attributes)
		if idx, ok := index[node.ID]; ok {
			node.Seq = existing[idx].Seq
			existing[idx] = node
			continue
		}
		node.Seq = int64(len(existing) + 1)
		index[node.ID] = len(existing)
		existing = append(existing, node)
	}
	m.trail[questionID] = existing
	return nil
}

func (m *MemoryStore) ListTrail(ctx context.Context, questionID string) ([]store.TrailNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nodes := m.trail[questionID]
	cloned := make([]store.TrailNode, 0, len(nodes))
	for _, node := range nodes {
		copy := node
		copy.Attributes = cloneMap(node.Attributes)
		cloned = append(cloned, copy)
	}
	return cloned, nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, event store.QuestionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Type = store.NormalizeEventType(event.Type)
	event.Payload = cloneMap(event.Payload)
	m.events[event.QuestionID] = append(m.events[event.QuestionID], event)
	if event.Seq > m.seq[event.QuestionID] {
		m.seq[event.QuestionID] = event.Seq
	}
	m.applyQuestionStateLocked(event)
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, questionID string, afterSeq int64) ([]store.QuestionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.events[questionID]
	filtered := make([]store.QuestionEvent, 0, len(events))
	for _, event := range events {
		if afterSeq > 0 && event.Seq <= afterSeq {
			continue
		}
		filtered = append(filtered, event)
	}
	return filtered, nil
}

func (m *MemoryStore) NextSeq(ctx context.Context, questionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[questionID] += 1
	return m.seq[questionID], nil
}

func (m *MemoryStore) applyQuestionStateLocked(event store.QuestionEvent) {
	question, ok := m.questions[event.QuestionID]
	if !ok {
		return
	}
	if update, ok := store.QuestionUpdateFromEvent(event); ok {
		question = update.Apply(question)
	}
	if event.Seq > question.CheckpointSeq {
		question.CheckpointSeq = event.Seq
	}
	if strings.TrimSpace(event.Timestamp) != "" {
		question.UpdatedAt = event.Timestamp
	}
	m.questions[event.QuestionID] = question
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
