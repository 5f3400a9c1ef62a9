package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"peer-match/internal/config"
	"peer-match/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrLockHeld = errors.New("lock held by another holder")

type Redis struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration

	warnedUnavailable atomic.Bool
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedis(cfg config.RedisConfig, l *zap.Logger) *Redis {
	l = logger.OrNop(l)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		l.Warn("redis unavailable, locks bypassed", zap.String("addr", cfg.Addr()), zap.Error(err))
		_ = client.Close()
		return &Redis{client: nil, logger: l, ttl: cfg.LockTTL}
	}

	return &Redis{client: client, logger: l, ttl: cfg.LockTTL}
}

// NewRedisFromClient wraps an existing client; a nil client yields a bypassing Redis.
func NewRedisFromClient(client *redis.Client, ttl time.Duration, l *zap.Logger) *Redis {
	return &Redis{client: client, logger: logger.OrNop(l), ttl: ttl}
}

func (r *Redis) isUnavailable() bool {
	return r == nil || r.client == nil
}

func (r *Redis) warnUnavailableOnce(err error) {
	if r == nil || r.logger == nil {
		return
	}
	if r.warnedUnavailable.CompareAndSwap(false, true) {
		r.logger.Warn("redis unavailable, locks bypassed", zap.Error(err))
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	if r.isUnavailable() {
		return errors.New("redis unavailable")
	}
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if r.isUnavailable() {
		return nil
	}
	return r.client.Close()
}

func (r *Redis) SetIfNotExists(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if r.isUnavailable() {
		return false, nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		r.warnUnavailableOnce(err)
		return false, err
	}
	return ok, nil
}

// Acquire takes key for ttl (the configured lock TTL when ttl <= 0). It returns ErrLockHeld when
// another holder owns the key. When Redis is unavailable the lock is bypassed and a no-op release is
// returned; callers must not rely on the lock for correctness.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	noop := func() {}
	if r.isUnavailable() {
		return noop, nil
	}
	if ttl <= 0 {
		ttl = r.ttl
	}

	token := uuid.NewString()
	ok, err := r.SetIfNotExists(ctx, key, token, ttl)
	if err != nil {
		return noop, nil
	}
	if !ok {
		return noop, ErrLockHeld
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis lock release failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// AcquireWait retries Acquire until the lock is taken or ctx is done.
func (r *Redis) AcquireWait(ctx context.Context, key string, ttl, poll time.Duration) (func(), error) {
	if poll <= 0 {
		poll = 25 * time.Millisecond
	}
	for {
		release, err := r.Acquire(ctx, key, ttl)
		if !errors.Is(err, ErrLockHeld) {
			return release, err
		}
		select {
		case <-ctx.Done():
			return func() {}, ctx.Err()
		case <-time.After(poll):
		}
	}
}
