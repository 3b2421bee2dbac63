package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "mafaconnect:lock:"

type RedisLocker struct {
	client  *redislock.Client
	backoff time.Duration
	wait    time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{
		client:  redislock.New(rdb),
		backoff: 50 * time.Millisecond,
		wait:    3 * time.Second,
	}
}

// Obtain retries with linear backoff until the lock is free or the wait
// budget runs out.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Releaser, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	held, err := l.client.Obtain(waitCtx, keyPrefix+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, err
	}
	return redisLease{lock: held}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (r redisLease) Release(ctx context.Context) error {
	err := r.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
