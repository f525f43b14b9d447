package milestone

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lockKey = "notify:milestone-run"

func TestLocalLock(t *testing.T) {
	var lock LocalLock
	ctx := context.Background()

	release, ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	_, ok, _ = lock.TryAcquire(ctx)
	assert.True(t, ok)
}

func newRedisLock(t *testing.T) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLock(client, lockKey, time.Minute), mr
}

func TestRedisLock_ExcludesSecondHolder(t *testing.T) {
	lock, mr := newRedisLock(t)
	ctx := context.Background()

	release, ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(lockKey))
	assert.Equal(t, time.Minute, mr.TTL(lockKey))

	_, ok, err = lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(lockKey))

	_, ok, err = lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ReleaseLeavesAnotherHoldersLock(t *testing.T) {
	lock, mr := newRedisLock(t)

	release, ok, err := lock.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// The lock expires mid-run and another replica takes it.
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set(lockKey, "other-replica"))

	release()
	got, err := mr.Get(lockKey)
	require.NoError(t, err)
	assert.Equal(t, "other-replica", got)
}

func TestRedisLock_PropagatesRedisErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRedisLock(client, lockKey, time.Minute)
	lock.token = func() string { return "tok" }

	mock.ExpectSetNX(lockKey, "tok", time.Minute).SetErr(errors.New("connection refused"))

	_, ok, err := lock.TryAcquire(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLock_HeldElsewhere(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRedisLock(client, lockKey, time.Minute)
	lock.token = func() string { return "tok" }

	mock.ExpectSetNX(lockKey, "tok", time.Minute).SetVal(false)

	release, ok, err := lock.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, release)
}
