package milestone

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock admits one scheduler run at a time. Release is nil when acquired
// is false.
type RunLock interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

// LocalLock serialises runs inside one process.
type LocalLock struct {
	mu sync.Mutex
}

func (l *LocalLock) TryAcquire(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockClient is the part of *redis.Client the lock uses.
type LockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLock serialises runs across replicas. The TTL bounds how long a
// crashed holder can block later runs.
type RedisLock struct {
	client LockClient
	key    string
	ttl    time.Duration
	token  func() string
}

func NewRedisLock(client LockClient, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl, token: uuid.NewString}
}

func (l *RedisLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := l.token()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// A failed release is left to the TTL.
		releaseScript.Run(ctx, l.client, []string{l.key}, token)
	}
	return release, true, nil
}
