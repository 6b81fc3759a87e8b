package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis configuration
type Config struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Client wraps the Redis client
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a new Redis client
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	logger.Info("redis connection established", "addr", cfg.Addr, "db", cfg.DB)

	return &Client{rdb: rdb, logger: logger}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck checks Redis connection health
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// IdempotencyStore caches API responses keyed by idempotency key.
// Implements middleware.IdempotencyStore.
type IdempotencyStore struct {
	client *Client
	prefix string
}

// NewIdempotencyStore creates a Redis-backed idempotency store
func NewIdempotencyStore(client *Client) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		prefix: "idempotency:",
	}
}

// Get returns the cached response for a key, if any
func (s *IdempotencyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.rdb.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading idempotency key: %w", err)
	}
	return val, true, nil
}

// Set caches a response under a key for the given TTL
func (s *IdempotencyStore) Set(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if err := s.client.rdb.Set(ctx, s.prefix+key, response, ttl).Err(); err != nil {
		return fmt.Errorf("storing idempotency key: %w", err)
	}
	return nil
}

// RateLimiter is a fixed-window rate limiter. A counter per key is
// incremented on each request and expires after the window.
// Implements middleware.RateLimiter.
type RateLimiter struct {
	client *Client
	limit  int64
	window time.Duration
	prefix string
}

// NewRateLimiter creates a Redis-backed fixed-window rate limiter
func NewRateLimiter(client *Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
	}
}

// Allow reports whether the request identified by key is within the limit
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	counterKey := l.prefix + key

	count, err := l.client.rdb.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}

	// First request in the window sets the expiry
	if count == 1 {
		if err := l.client.rdb.Expire(ctx, counterKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("setting rate limit window: %w", err)
		}
	}

	return count <= l.limit, nil
}
