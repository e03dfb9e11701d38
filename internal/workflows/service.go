package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
)

const DefaultTaskQueue = "seeker-questions"

type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(client client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Service{client: client, taskQueue: taskQueue}
}

// StartQuestion dispatches the question and returns without waiting for the answer.
func (s *Service) StartQuestion(ctx context.Context, questionID string, question string, token string) error {
	options := client.StartWorkflowOptions{
		ID:        workflowID(questionID),
		TaskQueue: s.taskQueue,
	}
	_, err := s.client.ExecuteWorkflow(ctx, options, QuestionWorkflow, QuestionInput{
		QuestionID: questionID,
		Question:   question,
		Token:      token,
	})
	return err
}

func (s *Service) CancelQuestion(ctx context.Context, questionID string) error {
	return s.client.CancelWorkflow(ctx, workflowID(questionID), "")
}

func workflowID(questionID string) string {
	return fmt.Sprintf("question:%s", questionID)
}
