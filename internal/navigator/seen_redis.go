package navigator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSeenTTL = 24 * time.Hour

// RedisSeen shares the seen set of one question between worker processes.
type RedisSeen struct {
	client     redis.UniversalClient
	questionID string
	ttl        time.Duration
}

func NewRedisSeen(client redis.UniversalClient, questionID string, ttl time.Duration) *RedisSeen {
	if ttl <= 0 {
		ttl = defaultSeenTTL
	}
	return &RedisSeen{client: client, questionID: questionID, ttl: ttl}
}

func (r *RedisSeen) key(digest string) string {
	return fmt.Sprintf("seeker:seen:%s:%s", r.questionID, digest)
}

func (r *RedisSeen) Claim(ctx context.Context, digest string) (bool, error) {
	claimed, err := r.client.SetNX(ctx, r.key(digest), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim seen digest: %w", err)
	}
	return claimed, nil
}

func (r *RedisSeen) Release(ctx context.Context, digest string) error {
	if err := r.client.Del(ctx, r.key(digest)).Err(); err != nil {
		return fmt.Errorf("release seen digest: %w", err)
	}
	return nil
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
