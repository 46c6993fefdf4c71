package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "crudcrawl:relations:"

// fieldSeparator joins parent and child in a hash field. Resource names are
// normalized to words and spaces and never contain it.
const fieldSeparator = "\x1f"

// RelationCache stores parent/child answers in one Redis hash per session.
type RelationCache struct {
	client  *redis.Client
	session string
	ttl     time.Duration
}

// Option configures a RelationCache.
type Option func(*RelationCache)

// WithTTL expires the session's answers ttl after the last write.
func WithTTL(ttl time.Duration) Option {
	return func(c *RelationCache) {
		c.ttl = ttl
	}
}

// NewRelationCache creates a cache scoped to session.
func NewRelationCache(client *redis.Client, session string, opts ...Option) *RelationCache {
	c := &RelationCache{client: client, session: session}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to the Redis server at addr and checks it is reachable.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (c *RelationCache) key() string {
	return keyPrefix + c.session
}

// Lookup returns the stored answer for (parent, child).
func (c *RelationCache) Lookup(ctx context.Context, parent, child string) (bool, bool, error) {
	v, err := c.client.HGet(ctx, c.key(), parent+fieldSeparator+child).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read relation %s/%s: %w", parent, child, err)
	}
	return v == "1", true, nil
}

// Store records the answer for (parent, child).
func (c *RelationCache) Store(ctx context.Context, parent, child string, related bool) error {
	v := "0"
	if related {
		v = "1"
	}
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, c.key(), parent+fieldSeparator+child, v)
	if c.ttl > 0 {
		pipe.Expire(ctx, c.key(), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store relation %s/%s: %w", parent, child, err)
	}
	return nil
}

// Clear removes every answer of the session.
func (c *RelationCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key()).Err(); err != nil {
		return fmt.Errorf("failed to clear relations: %w", err)
	}
	return nil
}
