package navigator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/llm"
)

type fixedCounter int

func (c fixedCounter) Count(string) int { return int(c) }

func TestJudgeSnippets(t *testing.T) {
	provider := &queueProvider{replies: []string{"  PDF TITLE: Annual report\nDESCRIPTION: yearly figures  "}}
	judge := NewJudge(provider, fixedCounter(100), JudgeConfig{Model: "judge", MaxTokens: 1000})

	snippets, err := judge.Snippets(context.Background(), reportText, "USER: "+testQuery)
	require.NoError(t, err)
	require.Equal(t, "PDF TITLE: Annual report\nDESCRIPTION: yearly figures", snippets)

	req := provider.requests[0]
	require.Equal(t, "judge", req.Model)
	require.Len(t, req.Messages, 5)
	require.Equal(t, snippetSystemPrompt, req.Messages[0].Content)
	require.True(t, strings.HasPrefix(req.Messages[1].Content, "=============== PDF START ==============="))
	require.Contains(t, req.Messages[1].Content, reportText)
	require.Equal(t, "USER: "+testQuery, req.Messages[3].Content)
	require.Equal(t, snippetInstruction, req.Messages[4].Content)
}

func TestJudgeMismatch(t *testing.T) {
	provider := &queueProvider{replies: []string{" mismatch "}}
	judge := NewJudge(provider, fixedCounter(100), JudgeConfig{})

	_, err := judge.Snippets(context.Background(), reportText, "USER: "+testQuery)
	require.True(t, IsKind(err, KindContentMismatch))
}

func TestJudgeDescribesOversizedDocuments(t *testing.T) {
	text := strings.Repeat("a", 10) + strings.Repeat("b", 10) + strings.Repeat("c", 10)

	t.Run("relevant", func(t *testing.T) {
		provider := &queueProvider{replies: []string{"PDF TITLE: Letters\nDESCRIPTION: abc"}}
		judge := NewJudge(provider, fixedCounter(11), JudgeConfig{MaxTokens: 10, CharWindow: 10})

		description, err := judge.Snippets(context.Background(), text, "USER: letters")
		require.NoError(t, err)
		require.Equal(t, "PDF TITLE: Letters\nDESCRIPTION: abc", description)
		req := provider.requests[0]
		require.Equal(t, partsSystemPrompt, req.Messages[0].Content)
		require.Equal(t, "aaaaaaaaaa...\n\n...bbbbbbbbbb...\n\n...cccccccccc", req.Messages[1].Content)
		require.Equal(t, partsInstruction, req.Messages[4].Content)
	})

	t.Run("irrelevant", func(t *testing.T) {
		provider := &queueProvider{replies: []string{"PDF TITLE: Letters\nDESCRIPTION: abc\nMISMATCH"}}
		judge := NewJudge(provider, fixedCounter(11), JudgeConfig{MaxTokens: 10, CharWindow: 10})

		_, err := judge.Snippets(context.Background(), text, "USER: letters")
		require.True(t, IsKind(err, KindContentMismatch))
		require.Equal(t, "ContentMismatch: This PDF document does not seem to be relevant.", err.Error())
	})
}

func TestJudgeModelFailure(t *testing.T) {
	provider := &queueProvider{err: errors.New("boom")}
	judge := NewJudge(provider, fixedCounter(1), JudgeConfig{})

	_, err := judge.Snippets(context.Background(), reportText, "USER: x")
	require.True(t, IsKind(err, KindContentNotFound))
}

func TestPartition(t *testing.T) {
	beginning, middle, end := partition("short", 10)
	require.Equal(t, []string{"short", "short", "short"}, []string{beginning, middle, end})

	beginning, middle, end = partition("ééééébbbbbccccc", 5)
	require.Equal(t, "ééééé", beginning)
	require.Equal(t, "bbbb", middle)
	require.Equal(t, "ccccc", end)
}

type gatedProvider struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *gatedProvider) Generate(ctx context.Context, req llm.Request) (string, error) {
	p.calls.Add(1)
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return "PDF TITLE: shared", nil
}

func TestJudgeSharesConcurrentIdenticalCalls(t *testing.T) {
	provider := &gatedProvider{entered: make(chan struct{}), release: make(chan struct{})}
	judge := NewJudge(provider, fixedCounter(1), JudgeConfig{})

	const callers = 4
	results := make(chan string, callers)
	call := func() {
		snippets, err := judge.Snippets(context.Background(), reportText, "USER: "+testQuery)
		if err != nil {
			t.Error(err)
		}
		results <- snippets
	}
	go call()
	<-provider.entered
	for i := 1; i < callers; i++ {
		go call()
	}
	time.Sleep(100 * time.Millisecond)
	close(provider.release)

	for i := 0; i < callers; i++ {
		require.Equal(t, "PDF TITLE: shared", <-results)
	}
	require.Equal(t, int32(1), provider.calls.Load())
}

func TestJudgeSharedCallSurvivesFirstCallerCancel(t *testing.T) {
	provider := &gatedProvider{entered: make(chan struct{}), release: make(chan struct{})}
	judge := NewJudge(provider, fixedCounter(1), JudgeConfig{})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := judge.Snippets(firstCtx, reportText, "USER: "+testQuery)
		firstErr <- err
	}()
	<-provider.entered

	second := make(chan string, 1)
	go func() {
		snippets, err := judge.Snippets(context.Background(), reportText, "USER: "+testQuery)
		if err != nil {
			t.Error(err)
		}
		second <- snippets
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	err := <-firstErr
	require.True(t, IsKind(err, KindContentNotFound))

	close(provider.release)
	require.Equal(t, "PDF TITLE: shared", <-second)
	require.Equal(t, int32(1), provider.calls.Load())
}

func TestDigestIsStable(t *testing.T) {
	require.Equal(t, Digest(reportText), Digest(reportText))
	require.NotEqual(t, Digest(reportText), Digest(reportText+" "))
	require.Len(t, Digest(""), 64)
}
