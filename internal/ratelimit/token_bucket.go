package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter admits or rejects one unit of work for a key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// TokenBucket implements a distributed token bucket rate limiter using Redis.
// It guards both the AI assistance endpoints and outbound publishes.
type TokenBucket struct {
	client   *redis.Client
	prefix   string
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenBucket constructs a bucket with the provided capacity/refill. Keys
// passed to Allow are namespaced under prefix.
func NewTokenBucket(client *redis.Client, prefix string, capacity int, refillPerSecond float64, ttl time.Duration) *TokenBucket {
	return &TokenBucket{
		client:   client,
		prefix:   prefix,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow consumes a single token for the given key if available.
// Returns allowed flag and current token count.
func (b *TokenBucket) Allow(ctx context.Context, key string) (bool, float64, error) {
	now := b.now().UnixMilli()
	res, err := bucketScript.Run(ctx, b.client, []string{b.prefix + key}, b.capacity, b.refill, now, b.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, fmt.Errorf("ratelimit: unexpected script reply %T", res)
	}
	flag, _ := arr[0].(int64)
	var tokens float64
	switch v := arr[1].(type) {
	case int64:
		tokens = float64(v)
	case float64:
		tokens = v
	}
	return flag == 1, tokens, nil
}

// Redis truncates Lua numbers to integers on reply, so the remaining token
// count is informational only.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
local add = delta / 1000 * refill
tokens = math.min(capacity, tokens + add)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)

// MemoryBucket is an in-process token bucket with the same semantics as
// TokenBucket, for single-instance deployments without Redis.
type MemoryBucket struct {
	mu       sync.Mutex
	capacity float64
	refill   float64
	buckets  map[string]*memoryState
	now      func() time.Time
}

type memoryState struct {
	tokens float64
	last   time.Time
}

func NewMemoryBucket(capacity int, refillPerSecond float64) *MemoryBucket {
	return &MemoryBucket{
		capacity: float64(capacity),
		refill:   refillPerSecond,
		buckets:  make(map[string]*memoryState),
		now:      time.Now,
	}
}

func (b *MemoryBucket) Allow(_ context.Context, key string) (bool, float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	st, ok := b.buckets[key]
	if !ok {
		st = &memoryState{tokens: b.capacity, last: now}
		b.buckets[key] = st
	}
	if elapsed := now.Sub(st.last).Seconds(); elapsed > 0 {
		st.tokens = math.Min(b.capacity, st.tokens+elapsed*b.refill)
	}
	st.last = now

	if st.tokens < 1 {
		return false, st.tokens, nil
	}
	st.tokens--
	return true, st.tokens, nil
}
