package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCounter keeps counters in process memory. Expired windows are reset
// lazily and swept periodically.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
	hits    int
	now     func() time.Time
}

type window struct {
	count     int64
	expiresAt time.Time
}

const sweepEvery = 1024

// NewMemoryCounter returns an empty counter. now defaults to time.Now.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{windows: make(map[string]*window), now: now}
}

// Hit increments key within its current window.
func (c *MemoryCounter) Hit(ctx context.Context, key string, length time.Duration) (int64, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.hits++
	if c.hits%sweepEvery == 0 {
		for k, w := range c.windows {
			if !w.expiresAt.After(now) {
				delete(c.windows, k)
			}
		}
	}

	w, ok := c.windows[key]
	if !ok || !w.expiresAt.After(now) {
		w = &window{expiresAt: now.Add(length)}
		c.windows[key] = w
	}
	w.count++
	return w.count, w.expiresAt.Sub(now), nil
}

// hitScript increments the key, sets the window on first use and reports the
// remaining time, atomically.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounter keeps counters in Redis so every process shares them.
type RedisCounter struct {
	client redis.UniversalClient
}

// NewRedisCounter returns a counter backed by client.
func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client}
}

// Hit increments key within its current window.
func (c *RedisCounter) Hit(ctx context.Context, key string, length time.Duration) (int64, time.Duration, error) {
	res, err := hitScript.Run(ctx, c.client, []string{key}, length.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}
