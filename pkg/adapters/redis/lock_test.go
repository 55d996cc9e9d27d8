package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/preflight/pkg/adapters/redis"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, "preflight:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "pipeline-run", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, unlock)

	assert.True(t, mr.Exists("preflight:lock:pipeline-run"), "Lock key should be set in Redis")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("preflight:lock:pipeline-run"), "Lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	mr, client := setup(t)
	locker1 := redis.NewLocker(client, "preflight:")
	locker2 := redis.NewLocker(client, "preflight:")
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "pack-admin", 5*time.Second)
	require.NoError(t, err)

	ctxTimeout, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker2.Lock(ctxTimeout, "pack-admin", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, "pack-admin", 5*time.Second)
	require.NoError(t, err)
	defer unlock2(ctx)
	assert.True(t, mr.Exists("preflight:lock:pack-admin"))
}

func TestRedisLocker_ExpiredLockIsLost(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, "")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "pipeline-run", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	other, err := locker.Lock(ctx, "pipeline-run", time.Second)
	require.NoError(t, err)

	assert.ErrorIs(t, unlock(ctx), redis.ErrLockLost, "stale holder must not release the new lock")
	assert.True(t, mr.Exists("lock:pipeline-run"))
	require.NoError(t, other(ctx))
}

func TestNewClient(t *testing.T) {
	mr, _ := setup(t)
	client, err := redis.NewClient("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	_, err = redis.NewClient("not a url")
	assert.Error(t, err)
}
