package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iconidentify/ytgrabba/internal/config"
)

// Counter is a fixed-window counter shared by limiter instances.
type Counter interface {
	// Incr adds one to key and returns the new value. The key expires
	// ttl after its first increment.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// MemoryCounter keeps counts in process memory. Counts are lost on restart.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]*memoryEntry
	now    func() time.Time
}

type memoryEntry struct {
	n       int64
	expires time.Time
}

// NewMemoryCounter creates an in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		counts: make(map[string]*memoryEntry),
		now:    time.Now,
	}
}

// Incr implements Counter.
func (c *MemoryCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.counts[key]
	if !ok || !now.Before(e.expires) {
		e = &memoryEntry{expires: now.Add(ttl)}
		c.counts[key] = e
	}
	e.n++
	return e.n, nil
}

// Evict drops expired keys and returns how many were removed.
func (c *MemoryCounter) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.counts {
		if !now.Before(e.expires) {
			delete(c.counts, key)
			removed++
		}
	}
	return removed
}

// RedisCounter keeps counts in Redis so quotas survive restarts and are
// shared between replicas.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps an existing client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Incr implements Counter with INCR followed by EXPIRE on the first hit.
func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	if n == 1 {
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			return n, fmt.Errorf("redis expire: %w", err)
		}
	}
	return n, nil
}

// Close releases the Redis connection pool.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}

// Connect returns a Redis-backed counter when REDIS_ADDR is configured and
// reachable, otherwise an in-memory counter.
func Connect(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) Counter {
	if cfg.RedisAddr == "" {
		return NewMemoryCounter()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not available, using in-memory rate limit counters",
			"addr", cfg.RedisAddr,
			"error", err,
		)
		client.Close()
		return NewMemoryCounter()
	}

	logger.Info("redis connected for rate limit counters", "addr", cfg.RedisAddr)
	return NewRedisCounter(client)
}
