package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// LiveCache keeps the most recent engagement score per student for each
// active session. It backs the admin fleet view and the teacher dashboard's
// live figure without scanning the record log.
type LiveCache interface {
	SetScore(ctx context.Context, sessionID, studentID string, score float64) error
	Scores(ctx context.Context, sessionID string) (map[string]float64, error)
	ActiveCount(ctx context.Context, sessionID string) (int, error)
	Clear(ctx context.Context, sessionID string) error
}

type liveCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLiveCache(client *redis.Client) LiveCache {
	return &liveCache{
		client: client,
		ttl:    12 * time.Hour,
	}
}

func (c *liveCache) key(sessionID string) string {
	return fmt.Sprintf("session:%s:live", sessionID)
}

func (c *liveCache) SetScore(ctx context.Context, sessionID, studentID string, score float64) error {
	key := c.key(sessionID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, studentID, strconv.FormatFloat(score, 'f', 4, 64))
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *liveCache) Scores(ctx context.Context, sessionID string) (map[string]float64, error) {
	raw, err := c.client.HGetAll(ctx, c.key(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(raw))
	for student, v := range raw {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			scores[student] = f
		}
	}
	return scores, nil
}

func (c *liveCache) ActiveCount(ctx context.Context, sessionID string) (int, error) {
	n, err := c.client.HLen(ctx, c.key(sessionID)).Result()
	return int(n), err
}

func (c *liveCache) Clear(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}
