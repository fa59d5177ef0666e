package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisLockPrefix = "catalog:inflight:"

// defaultLockTTL bounds how long a crashed holder can wedge a query text.
const defaultLockTTL = 30 * time.Second

// releaseScript deletes the marker only while it still carries this holder's
// token. A marker that expired mid-fetch and was re-acquired by another
// process belongs to that process now and is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is the multi-process locker: a persisted in-flight marker with
// a mandatory expiry, so a holder that dies mid-fetch cannot permanently
// block later requests for the same query text. Each acquisition stores a
// unique ownership token; release is compare-and-delete against that token.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		tokens: make(map[string]string),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (bool, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, redisLockPrefix+key, token, l.ttl).Result()
	if err != nil || !acquired {
		return false, err
	}
	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, held := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !held {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{redisLockPrefix + key}, token).Err()
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
