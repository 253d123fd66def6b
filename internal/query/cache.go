package query

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// cache is a thin read-through wrapper over go-redis for caching
// decoded match lists keyed by filter.
type cache struct {
	client *redis.Client
}

func newCache(redisURL string) (*cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &cache{client: client}, nil
}

func (c *cache) close() error { return c.client.Close() }

func (c *cache) getBytes(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (c *cache) setBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}
