package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFromClient(client, 5*time.Second, nil), mr
}

func TestRedis_AcquireRelease(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "lock:match:1", 0)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:match:1"))
	assert.Equal(t, 5*time.Second, mr.TTL("lock:match:1"))

	_, err = r.Acquire(ctx, "lock:match:1", 0)
	assert.ErrorIs(t, err, ErrLockHeld)

	release()
	assert.False(t, mr.Exists("lock:match:1"))

	release2, err := r.Acquire(ctx, "lock:match:1", time.Second)
	require.NoError(t, err)
	release2()
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	// The lock expired and another holder took it.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("k", "someone-else"))

	release()
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedis_AcquireWait(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()

	release2, err := r.AcquireWait(ctx, "k", time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	release2()
}

func TestRedis_AcquireWaitCanceled(t *testing.T) {
	r, _ := newTestRedis(t)

	_, err := r.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.AcquireWait(ctx, "k", time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedis_UnavailableBypasses(t *testing.T) {
	r := NewRedisFromClient(nil, time.Second, nil)

	release, err := r.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)
	require.NotNil(t, release)
	release()

	ok, err := r.SetIfNotExists(context.Background(), "k", "v", 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Error(t, r.Ping(context.Background()))
}

func TestRedis_ServerDownBypasses(t *testing.T) {
	r, mr := newTestRedis(t)
	mr.Close()

	release, err := r.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	release()
}
