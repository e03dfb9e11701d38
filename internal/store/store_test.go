package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/conversation"
)

func TestQuestionUpdateFromEvent(t *testing.T) {
	tests := []struct {
		name  string
		event QuestionEvent
		want  QuestionUpdate
		ok    bool
	}{
		{name: "started", event: QuestionEvent{Type: "question.started"}, want: QuestionUpdate{Status: StatusRunning}, ok: true},
		{
			name: "answered",
			event: QuestionEvent{Type: "QUESTION_ANSWERED", Payload: map[string]any{
				"answer":       "Revenue grew.\nFINAL ANSWER: 12",
				"final_answer": "12",
				"answered":     true,
				"rounds":       float64(2),
			}},
			want: QuestionUpdate{Status: StatusAnswered, Answer: "Revenue grew.\nFINAL ANSWER: 12", FinalAnswer: "12", Answered: true, Rounds: 2},
			ok:   true,
		},
		{name: "failed default reason", event: QuestionEvent{Type: "question.failed"}, want: QuestionUpdate{Status: StatusFailed, Error: "activity_error"}, ok: true},
		{name: "failed reason", event: QuestionEvent{Type: "question.failed", Payload: map[string]any{"error": "boom"}}, want: QuestionUpdate{Status: StatusFailed, Error: "boom"}, ok: true},
		{name: "cancelled", event: QuestionEvent{Type: "question.cancelled"}, want: QuestionUpdate{Status: StatusCancelled, Error: "user_cancelled"}, ok: true},
		{name: "step", event: QuestionEvent{Type: "navigator.step"}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := QuestionUpdateFromEvent(tt.event)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestQuestionUpdateApplyKeepsExistingFields(t *testing.T) {
	question := Question{ID: "q-1", Status: StatusRunning, Answer: "earlier", Rounds: 1}
	updated := QuestionUpdate{Status: StatusFailed, Error: "boom"}.Apply(question)
	require.Equal(t, StatusFailed, updated.Status)
	require.Equal(t, "earlier", updated.Answer)
	require.Equal(t, 1, updated.Rounds)
	require.Equal(t, "boom", updated.Error)
}

func TestIsTerminal(t *testing.T) {
	require.True(t, IsTerminal(StatusAnswered))
	require.True(t, IsTerminal(StatusCancelled))
	require.False(t, IsTerminal(StatusRunning))
	require.False(t, IsTerminal(StatusQueued))
}

func TestBuildProgress(t *testing.T) {
	step := func(seq int64, state string, extra map[string]any) QuestionEvent {
		payload := map[string]any{"state": state}
		for key, value := range extra {
			payload[key] = value
		}
		return QuestionEvent{QuestionID: "q-1", Seq: seq, Type: "navigator.step", Payload: payload}
	}
	progress := BuildProgress([]QuestionEvent{
		{QuestionID: "q-1", Seq: 1, Type: "question.started"},
		step(2, "CHOOSE_QUERY_OR_URL", nil),
		step(3, "SEARCH", nil),
		step(4, "ASK_MODEL_FOR_NEXT_URL", nil),
		step(5, "RECURSE", map[string]any{"url": "https://reports.example/annual"}),
		step(6, "choose_query_or_url", nil),
		step(7, "FETCH", map[string]any{"url": "https://reports.example/annual"}),
		step(8, "FAIL", map[string]any{"kind": "ContentNotFound"}),
		step(9, "BACKTRACK_RETRY", nil),
		step(10, "FAIL", nil),
		step(11, "SUCCEED", map[string]any{"url": "https://reports.example/annual.pdf"}),
		step(12, "", nil),
	})

	require.Equal(t, 2, progress.Steps)
	require.Equal(t, 1, progress.Searches)
	require.Equal(t, 1, progress.Fetches)
	require.Equal(t, 1, progress.Hops)
	require.Equal(t, 1, progress.Backtracks)
	require.Equal(t, 1, progress.PDFsFound)
	require.Equal(t, map[string]int{"ContentNotFound": 1, "unknown": 1}, progress.Failures)
	require.Equal(t, "SUCCEED", progress.LastState)
	require.Equal(t, "https://reports.example/annual.pdf", progress.LastURL)
	require.Equal(t, int64(12), progress.LastSeq)
}

func TestBuildProgressEmpty(t *testing.T) {
	progress := BuildProgress(nil)
	require.Zero(t, progress.Steps)
	require.NotNil(t, progress.Failures)
}

func TestTrailFromNodes(t *testing.T) {
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	nodes := []conversation.Node{
		{ID: "n-1", Sender: "USER", Content: "question", Attributes: conversation.Attributes{Kind: conversation.KindQuery}, CreatedAt: stamp},
		{
			ID:            "n-2",
			ParentID:      "n-1",
			BranchPointID: "n-1",
			Sender:        "Seeker",
			Content:       "Report text",
			Attributes: conversation.Attributes{
				Kind:      conversation.KindResult,
				Success:   true,
				PageURL:   "https://reports.example/annual.pdf",
				PDFDigest: "abc",
				Depth:     5,
				Retries:   2,
			},
		},
	}

	trail := TrailFromNodes("q-1", nodes)
	require.Len(t, trail, 2)
	require.Equal(t, "q-1", trail[0].QuestionID)
	require.Equal(t, "query", trail[0].Kind)
	require.Empty(t, trail[0].Attributes)
	require.Equal(t, "2026-03-01T12:00:00Z", trail[0].CreatedAt)
	require.Equal(t, "n-1", trail[1].BranchPointID)
	require.Empty(t, trail[1].CreatedAt)
	require.Equal(t, map[string]any{
		"success":    true,
		"page_url":   "https://reports.example/annual.pdf",
		"pdf_digest": "abc",
		"depth":      5,
		"retries":    2,
	}, trail[1].Attributes)
}
