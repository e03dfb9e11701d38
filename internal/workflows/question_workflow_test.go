package workflows

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	tests "go.temporal.io/sdk/testsuite"
)

type WorkflowTestSuite struct {
	suite.Suite
	testSuite *tests.WorkflowTestSuite
	env       *tests.TestWorkflowEnvironment
}

func (s *WorkflowTestSuite) SetupTest() {
	s.testSuite = &tests.WorkflowTestSuite{}
	s.env = s.testSuite.NewTestWorkflowEnvironment()
	s.env.RegisterWorkflow(QuestionWorkflow)
	s.env.RegisterActivityWithOptions(func(ctx context.Context, input QuestionInput) (AnswerOutput, error) {
		return AnswerOutput{}, nil
	}, activity.RegisterOptions{Name: "AnswerQuestion"})
	s.env.RegisterActivityWithOptions(func(ctx context.Context, input QuestionFailureInput) error {
		return nil
	}, activity.RegisterOptions{Name: "HandleQuestionFailure"})
}

func (s *WorkflowTestSuite) TearDownTest() {
	s.env.AssertExpectations(s.T())
}

func (s *WorkflowTestSuite) TestQuestionWorkflow_Answered() {
	input := QuestionInput{QuestionID: "q-1", Question: "What was the 2019 revenue?", Token: "tok-1"}
	s.env.OnActivity("AnswerQuestion", mock.Anything, input).
		Return(AnswerOutput{Answer: "It grew.\nFINAL ANSWER: 12", FinalAnswer: "12", Answered: true, Rounds: 1}, nil).
		Once()

	s.env.ExecuteWorkflow(QuestionWorkflow, input)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result QuestionResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(StatusAnswered, result.Status)
	s.Equal("12", result.FinalAnswer)
}

func (s *WorkflowTestSuite) TestQuestionWorkflow_FailureIsRecorded() {
	input := QuestionInput{QuestionID: "q-2", Question: "q", Token: "tok-2"}
	activityErr := errors.New("llm provider: missing api key")

	s.env.OnActivity("AnswerQuestion", mock.Anything, input).Return(AnswerOutput{}, activityErr).Once()
	s.env.OnActivity("HandleQuestionFailure", mock.Anything, mock.MatchedBy(func(failure QuestionFailureInput) bool {
		return failure.QuestionID == "q-2" &&
			failure.Token == "tok-2" &&
			strings.HasPrefix(failure.Error, "answer: ") &&
			strings.Contains(failure.Error, activityErr.Error())
	})).Return(nil).Once()

	s.env.ExecuteWorkflow(QuestionWorkflow, input)
	s.True(s.env.IsWorkflowCompleted())

	var result QuestionResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(StatusFailed, result.Status)
}

func (s *WorkflowTestSuite) TestQuestionWorkflow_FailureActivityError() {
	input := QuestionInput{QuestionID: "q-3", Question: "q"}
	s.env.OnActivity("AnswerQuestion", mock.Anything, input).Return(AnswerOutput{}, errors.New("boom")).Once()
	s.env.OnActivity("HandleQuestionFailure", mock.Anything, mock.Anything).Return(errors.New("control plane down")).Once()

	s.env.ExecuteWorkflow(QuestionWorkflow, input)
	s.True(s.env.IsWorkflowCompleted())

	var result QuestionResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(StatusFailed, result.Status)
}

func TestWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(WorkflowTestSuite))
}
