// Package lease provides a Redis-backed mutual exclusion lease so that only one
// scheduler instance runs a tick at a time.
package lease

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"social-post-scheduler/internal/config"
)

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases on a single key.
type Locker interface {
	Acquire(ctx context.Context) (Lease, bool, error)
}

// RedisLocker acquires a key with SET NX PX and a random token.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 55 * time.Second
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// Acquire returns ok=false without error when another holder owns the key.
func (l *RedisLocker) Acquire(ctx context.Context) (Lease, bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{client: l.client, key: l.key, token: token}, true, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

// Release deletes the key only while it still holds this lease's token, so an
// expired lease never removes a newer holder's lock.
func (r *redisLease) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
