package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Client wraps Redis operations for the fallback result cache.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func cacheKey(query string) string {
	return fmt.Sprintf("fallback_cache:%s", query)
}

// cachedPayload is the stored envelope: the data plus when it was
// written, so the fallback layer can report staleness.
type cachedPayload struct {
	Data     []any     `json:"data"`
	StoredAt time.Time `json:"stored_at"`
}

// Put stores a successful result for later degraded-mode reads.
func (c *Client) Put(ctx context.Context, query string, data []any, ttl time.Duration) error {
	payload, err := json.Marshal(cachedPayload{Data: data, StoredAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal cache payload: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(query), payload, ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Get implements the fallback cache store. A miss returns nil data
// and no error.
func (c *Client) Get(ctx context.Context, query string) ([]any, time.Duration, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(query)).Bytes()
	if err == redis.Nil {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get failed: %w", err)
	}

	var payload cachedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, 0, fmt.Errorf("invalid cache payload: %w", err)
	}
	return payload.Data, time.Since(payload.StoredAt), nil
}

// Invalidate drops a cached result.
func (c *Client) Invalidate(ctx context.Context, query string) error {
	return c.rdb.Del(ctx, cacheKey(query)).Err()
}
