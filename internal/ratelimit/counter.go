package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter stores windowed call counts. Keys carry their window, so a counter
// only has to expire them.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Decr(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (int64, error)
}

// MemoryCounter is a process-local Counter.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	n       int64
	expires time.Time
}

// NewMemoryCounter creates an empty MemoryCounter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[string]memoryEntry), now: time.Now}
}

// Incr adds one to key, starting a fresh entry with the given ttl if the key
// is missing or expired.
func (c *MemoryCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[key]
	if !ok || now.After(e.expires) {
		e = memoryEntry{expires: now.Add(ttl)}
	}
	e.n++
	c.entries[key] = e
	c.sweep(now)
	return e.n, nil
}

// Decr subtracts one from key, never going below zero.
func (c *MemoryCounter) Decr(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && e.n > 0 {
		e.n--
		c.entries[key] = e
	}
	return nil
}

// Get returns the current count for key.
func (c *MemoryCounter) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		return 0, nil
	}
	return e.n, nil
}

// sweep drops expired entries. Caller holds mu.
func (c *MemoryCounter) sweep(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}

// RedisCounter keeps counts in redis so several workers share one budget.
type RedisCounter struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCounter connects to the redis URL (redis://host:port/db).
func NewRedisCounter(url string) (*RedisCounter, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	return &RedisCounter{rdb: redis.NewClient(opt), prefix: "threadjuice:"}, nil
}

// NewRedisCounterFromClient wraps an existing client.
func NewRedisCounterFromClient(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb, prefix: "threadjuice:"}
}

// Incr increments key and sets its expiry when the key is new.
func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := c.prefix + key
	n, err := c.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis incr %s: %w", k, err)
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, k, ttl).Err(); err != nil {
			return n, fmt.Errorf("ratelimit: redis expire %s: %w", k, err)
		}
	}
	return n, nil
}

// Decr decrements key.
func (c *RedisCounter) Decr(ctx context.Context, key string) error {
	k := c.prefix + key
	if err := c.rdb.Decr(ctx, k).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis decr %s: %w", k, err)
	}
	return nil
}

// Get returns the count for key, zero when missing.
func (c *RedisCounter) Get(ctx context.Context, key string) (int64, error) {
	k := c.prefix + key
	n, err := c.rdb.Get(ctx, k).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis get %s: %w", k, err)
	}
	return n, nil
}

// Close releases the redis connection pool.
func (c *RedisCounter) Close() error {
	return c.rdb.Close()
}
