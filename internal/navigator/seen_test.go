package navigator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemorySeenClaimsOnce(t *testing.T) {
	seen := NewMemorySeen()
	ctx := context.Background()

	first, err := seen.Claim(ctx, "abc")
	require.NoError(t, err)
	require.True(t, first)

	again, err := seen.Claim(ctx, "abc")
	require.NoError(t, err)
	require.False(t, again)

	other, err := seen.Claim(ctx, "def")
	require.NoError(t, err)
	require.True(t, other)
	require.Equal(t, 2, seen.Len())
}

func TestMemorySeenRelease(t *testing.T) {
	seen := NewMemorySeen()
	ctx := context.Background()

	_, err := seen.Claim(ctx, "abc")
	require.NoError(t, err)
	require.NoError(t, seen.Release(ctx, "abc"))
	require.NoError(t, seen.Release(ctx, "missing"))

	again, err := seen.Claim(ctx, "abc")
	require.NoError(t, err)
	require.True(t, again)
}

func TestRedisSeenRelease(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	seen := NewRedisSeen(client, "q-1", time.Hour)
	_, err := seen.Claim(ctx, "abc")
	require.NoError(t, err)
	require.NoError(t, seen.Release(ctx, "abc"))
	require.False(t, server.Exists("seeker:seen:q-1:abc"))

	again, err := seen.Claim(ctx, "abc")
	require.NoError(t, err)
	require.True(t, again)
}

func TestRedisSeenClaimsOncePerQuestion(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	seen := NewRedisSeen(client, "q-1", time.Hour)
	first, err := seen.Claim(ctx, "abc")
	require.NoError(t, err)
	require.True(t, first)

	again, err := seen.Claim(ctx, "abc")
	require.NoError(t, err)
	require.False(t, again)

	require.True(t, server.Exists("seeker:seen:q-1:abc"))
	require.Equal(t, time.Hour, server.TTL("seeker:seen:q-1:abc"))

	otherQuestion, err := NewRedisSeen(client, "q-2", 0).Claim(ctx, "abc")
	require.NoError(t, err)
	require.True(t, otherQuestion)
	require.Equal(t, defaultSeenTTL, server.TTL("seeker:seen:q-2:abc"))
}

func TestRedisSeenReportsConnectionErrors(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	server.Close()

	_, err := NewRedisSeen(client, "q-1", time.Minute).Claim(context.Background(), "abc")
	require.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	server := miniredis.RunT(t)
	client, err := NewRedisClient("redis://" + server.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	_, err = NewRedisClient("not a url")
	require.Error(t, err)
}

func TestNavigatorSharesRedisSeenAcrossRuns(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	run := func() Result {
		nav := newTestNavigator(Config{MaxDepth: 2, MaxRetries: 1}, &queueProvider{fallback: reportPDF}, testSearcher(), testPages(),
			WithSeenCache(NewRedisSeen(client, "q-1", time.Hour)))
		tree, root := newQuestionTree()
		return nav.Navigate(context.Background(), tree, root.ID)
	}

	require.True(t, run().Success)
	second := run()
	require.False(t, second.Success)
	require.Equal(t, KindTooManySteps, second.Kind)
}
