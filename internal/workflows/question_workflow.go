package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	StatusAnswered  = "answered"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

type QuestionInput struct {
	QuestionID string
	Question   string
	// Token correlates the answer with a caller waiting on the control plane.
	Token string
}

type QuestionResult struct {
	Status      string
	FinalAnswer string
}

type AnswerOutput struct {
	Answer      string `json:"answer"`
	FinalAnswer string `json:"final_answer"`
	Answered    bool   `json:"answered"`
	Rounds      int    `json:"rounds"`
}

type QuestionFailureInput struct {
	QuestionID string
	Token      string
	Error      string
}

func QuestionWorkflow(ctx workflow.Context, input QuestionInput) (QuestionResult, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 20 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)
	logger := workflow.GetLogger(ctx)

	var output AnswerOutput
	err := workflow.ExecuteActivity(ctx, "AnswerQuestion", input).Get(ctx, &output)
	if err == nil {
		logger.Info("question answered", "question_id", input.QuestionID, "rounds", output.Rounds)
		return QuestionResult{Status: StatusAnswered, FinalAnswer: output.FinalAnswer}, nil
	}
	if temporal.IsCanceledError(err) || ctx.Err() != nil {
		return QuestionResult{Status: StatusCancelled}, nil
	}

	logger.Error("answer activity failed", "question_id", input.QuestionID, "error", err)
	failureInput := QuestionFailureInput{
		QuestionID: input.QuestionID,
		Token:      input.Token,
		Error:      "answer: " + err.Error(),
	}
	if failureErr := workflow.ExecuteActivity(ctx, "HandleQuestionFailure", failureInput).Get(ctx, nil); failureErr != nil {
		logger.Error("failed to persist question failure event", "error", failureErr)
	}
	return QuestionResult{Status: StatusFailed}, nil
}
