package store

import (
	"context"
	"strings"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusAnswered  = "answered"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

type Question struct {
	ID            string
	Question      string
	Status        string
	Answer        string
	FinalAnswer   string
	Answered      bool
	Rounds        int
	Error         string
	CheckpointSeq int64
	CreatedAt     string
	UpdatedAt     string
}

// TrailNode is an archived conversation node of one question.
type TrailNode struct {
	QuestionID    string
	ID            string
	ParentID      string
	BranchPointID string
	Sender        string
	Content       string
	Kind          string
	Attributes    map[string]any
	Seq           int64
	CreatedAt     string
}

type QuestionEvent struct {
	QuestionID string
	Seq        int64
	Type       string
	Timestamp  string
	Source     string
	TraceID    string
	Payload    map[string]any
}

type Store interface {
	CreateQuestion(ctx context.Context, question Question) error
	GetQuestion(ctx context.Context, questionID string) (*Question, error)
	ListQuestions(ctx context.Context) ([]Question, error)
	UpdateQuestion(ctx context.Context, question Question) error
	DeleteQuestion(ctx context.Context, questionID string) error
	AppendTrail(ctx context.Context, questionID string, nodes []TrailNode) error
	ListTrail(ctx context.Context, questionID string) ([]TrailNode, error)
	AppendEvent(ctx context.Context, event QuestionEvent) error
	ListEvents(ctx context.Context, questionID string, afterSeq int64) ([]QuestionEvent, error)
	NextSeq(ctx context.Context, questionID string) (int64, error)
}

// QuestionUpdate is the change a lifecycle event makes to its question.
type QuestionUpdate struct {
	Status      string
	Answer      string
	FinalAnswer string
	Answered    bool
	Rounds      int
	Error       string
}

func NormalizeEventType(eventType string) string {
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		return ""
	}
	return strings.ReplaceAll(normalized, "_", ".")
}

// QuestionUpdateFromEvent maps question.* lifecycle events onto question fields.
func QuestionUpdateFromEvent(event QuestionEvent) (QuestionUpdate, bool) {
	switch NormalizeEventType(event.Type) {
	case "question.started":
		return QuestionUpdate{Status: StatusRunning}, true
	case "question.answered":
		return QuestionUpdate{
			Status:      StatusAnswered,
			Answer:      firstString(event.Payload, "answer"),
			FinalAnswer: firstString(event.Payload, "final_answer"),
			Answered:    firstBool(event.Payload, "answered"),
			Rounds:      firstInt(event.Payload, "rounds"),
		}, true
	case "question.failed":
		reason := firstString(event.Payload, "error")
		if reason == "" {
			reason = "activity_error"
		}
		return QuestionUpdate{Status: StatusFailed, Error: reason}, true
	case "question.cancelled":
		return QuestionUpdate{Status: StatusCancelled, Error: "user_cancelled"}, true
	default:
		return QuestionUpdate{}, false
	}
}

// Apply folds the update into question, keeping fields the update leaves empty.
func (u QuestionUpdate) Apply(question Question) Question {
	if u.Status != "" {
		question.Status = u.Status
	}
	if u.Answer != "" {
		question.Answer = u.Answer
	}
	if u.FinalAnswer != "" {
		question.FinalAnswer = u.FinalAnswer
	}
	if u.Answered {
		question.Answered = true
	}
	if u.Rounds > 0 {
		question.Rounds = u.Rounds
	}
	if u.Error != "" {
		question.Error = u.Error
	}
	return question
}

func IsTerminal(status string) bool {
	switch status {
	case StatusAnswered, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
