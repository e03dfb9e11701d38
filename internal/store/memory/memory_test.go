package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store"
	"github.com/stretchr/testify/require"
)

func TestCreateQuestionDefaultsToQueued(t *testing.T) {
	ctx := context.Background()
	mem := New()

	require.NoError(t, mem.CreateQuestion(ctx, store.Question{ID: "q-1", Question: "What was the revenue?", CreatedAt: "now", UpdatedAt: "now"}))

	question, err := mem.GetQuestion(ctx, "q-1")
	require.NoError(t, err)
	require.NotNil(t, question)
	require.Equal(t, store.StatusQueued, question.Status)

	missing, err := mem.GetQuestion(ctx, "q-2")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestListQuestionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	mem := New()
	require.NoError(t, mem.CreateQuestion(ctx, store.Question{ID: "q-old", UpdatedAt: "2026-01-01T00:00:00Z"}))
	require.NoError(t, mem.CreateQuestion(ctx, store.Question{ID: "q-new", UpdatedAt: "2026-02-01T00:00:00Z"}))

	questions, err := mem.ListQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	require.Equal(t, "q-new", questions[0].ID)
	require.Equal(t, "q-old", questions[1].ID)
}

func TestUpdateQuestionIgnoresUnknown(t *testing.T) {
	ctx := context.Background()
	mem := New()
	require.NoError(t, mem.UpdateQuestion(ctx, store.Question{ID: "q-1", Status: store.StatusRunning}))

	question, err := mem.GetQuestion(ctx, "q-1")
	require.NoError(t, err)
	require.Nil(t, question)
}

func TestAppendEventAppliesQuestionState(t *testing.T) {
	ctx := context.Background()
	mem := New()
	require.NoError(t, mem.CreateQuestion(ctx, store.Question{ID: "q-1", Status: store.StatusQueued, CreatedAt: "now", UpdatedAt: "now"}))

	require.NoError(t, mem.AppendEvent(ctx, store.QuestionEvent{QuestionID: "q-1", Seq: 1, Type: "QUESTION_STARTED", Timestamp: "2026-03-01T00:00:00Z"}))
	question, err := mem.GetQuestion(ctx, "q-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusRunning, question.Status)

	require.NoError(t, mem.AppendEvent(ctx, store.QuestionEvent{
		QuestionID: "q-1",
		Seq:        2,
		Type:       "navigator.step",
		Timestamp:  "2026-03-01T00:00:01Z",
		Payload:    map[string]any{"state": "SEARCH"},
	}))
	require.NoError(t, mem.AppendEvent(ctx, store.QuestionEvent{
		QuestionID: "q-1",
		Seq:        3,
		Type:       "question.answered",
		Timestamp:  "2026-03-01T00:00:02Z",
		Payload:    map[string]any{"answer": "It grew.\nFINAL ANSWER: 12", "final_answer": "12", "answered": true, "rounds": 1},
	}))

	question, err = mem.GetQuestion(ctx, "q-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusAnswered, question.Status)
	require.Equal(t, "12", question.FinalAnswer)
	require.True(t, question.Answered)
	require.Equal(t, 1, question.Rounds)
	require.Equal(t, int64(3), question.CheckpointSeq)
	require.Equal(t, "2026-03-01T00:00:02Z", question.UpdatedAt)

	events, err := mem.ListEvents(ctx, "q-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "question.started", events[0].Type)

	after, err := mem.ListEvents(ctx, "q-1", 2)
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, int64(3), after[0].Seq)
}

func TestNextSeqContinuesAfterAppendedEvents(t *testing.T) {
	ctx := context.Background()
	mem := New()
	require.NoError(t, mem.AppendEvent(ctx, store.QuestionEvent{QuestionID: "q-1", Seq: 5, Type: "navigator.step"}))

	seq, err := mem.NextSeq(ctx, "q-1")
	require.NoError(t, err)
	require.Equal(t, int64(6), seq)
}

func TestNextSeqConcurrent(t *testing.T) {
	ctx := context.Background()
	mem := New()
	var wg sync.WaitGroup
	results := make([]int64, 50)
	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], _ = mem.NextSeq(ctx, "q-1")
		}(i)
	}
	wg.Wait()
	unique := map[int64]bool{}
	for _, seq := range results {
		unique[seq] = true
	}
	require.Len(t, unique, 50)
	seq, err := mem.NextSeq(ctx, "q-1")
	require.NoError(t, err)
	require.Equal(t, int64(51), seq)
}

func TestAppendTrailReplacesByID(t *testing.T) {
	ctx := context.Background()
	mem := New()

	require.NoError(t, mem.AppendTrail(ctx, "q-1", []store.TrailNode{
		{ID: "n-1", Sender: "USER", Content: "question"},
		{ID: "n-2", ParentID: "n-1", Sender: "BROWSING_AGENT", Content: "https://reports.example", Attributes: map[string]any{"depth": 6}},
	}))
	require.NoError(t, mem.AppendTrail(ctx, "q-1", []store.TrailNode{
		{ID: "n-2", ParentID: "n-1", Sender: "BROWSING_AGENT", Content: "https://reports.example/annual"},
		{ID: "n-3", ParentID: "n-2", Sender: "BROWSING_AGENT", Content: "done"},
	}))

	nodes, err := mem.ListTrail(ctx, "q-1")
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	require.Equal(t, "https://reports.example/annual", nodes[1].Content)
	require.Equal(t, int64(2), nodes[1].Seq)
	require.Equal(t, int64(3), nodes[2].Seq)
	require.Equal(t, "q-1", nodes[2].QuestionID)

	nodes[0].Attributes["mutated"] = true
	again, err := mem.ListTrail(ctx, "q-1")
	require.NoError(t, err)
	require.NotContains(t, again[0].Attributes, "mutated")
}

func TestDeleteQuestionRemovesEverything(t *testing.T) {
	ctx := context.Background()
	mem := New()
	require.NoError(t, mem.CreateQuestion(ctx, store.Question{ID: "q-1"}))
	require.NoError(t, mem.AppendTrail(ctx, "q-1", []store.TrailNode{{ID: "n-1"}}))
	require.NoError(t, mem.AppendEvent(ctx, store.QuestionEvent{QuestionID: "q-1", Seq: 1, Type: "question.started"}))

	require.NoError(t, mem.DeleteQuestion(ctx, "q-1"))

	question, err := mem.GetQuestion(ctx, "q-1")
	require.NoError(t, err)
	require.Nil(t, question)
	nodes, err := mem.ListTrail(ctx, "q-1")
	require.NoError(t, err)
	require.Empty(t, nodes)
	events, err := mem.ListEvents(ctx, "q-1", 0)
	require.NoError(t, err)
	require.Empty(t, events)
	seq, err := mem.NextSeq(ctx, "q-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)
}
