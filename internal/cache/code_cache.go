package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeCache indexes the join codes of active sessions. The registry's
// bounded-retry code generator probes Exists here; entries are removed when
// a session ends, so expired codes become reusable.
type CodeCache interface {
	Set(ctx context.Context, code, sessionID string) error
	Get(ctx context.Context, code string) (string, error)
	Exists(ctx context.Context, code string) (bool, error)
	Delete(ctx context.Context, code string) error
}

type codeCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCodeCache(client *redis.Client) CodeCache {
	return &codeCache{
		client: client,
		ttl:    12 * time.Hour, // safety net; codes are deleted on session end
	}
}

func (c *codeCache) key(code string) string {
	return fmt.Sprintf("joincode:%s", code)
}

func (c *codeCache) Set(ctx context.Context, code, sessionID string) error {
	return c.client.Set(ctx, c.key(code), sessionID, c.ttl).Err()
}

// Get returns the active session id for a code, or "" if unknown.
func (c *codeCache) Get(ctx context.Context, code string) (string, error) {
	id, err := c.client.Get(ctx, c.key(code)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *codeCache) Exists(ctx context.Context, code string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(code)).Result()
	return n > 0, err
}

func (c *codeCache) Delete(ctx context.Context, code string) error {
	return c.client.Del(ctx, c.key(code)).Err()
}
