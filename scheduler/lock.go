package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	runLockKey = "lock:ecotrade_flows:run"
	runLockTTL = 3 * time.Hour
)

// Locker guards a retrieval pass. TryLock never blocks; ok is false when
// another pass holds the lock.
type Locker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// LocalLock serializes passes inside one process.
type LocalLock struct {
	mu sync.Mutex
}

func (l *LocalLock) TryLock(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// RedisLock serializes passes across every daemon sharing a Redis instance.
type RedisLock struct {
	client *redislock.Client
	key    string
	ttl    time.Duration
}

func (l *RedisLock) TryLock(ctx context.Context) (func(), bool, error) {
	lock, err := l.client.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain %s: %w", l.key, err)
	}
	release := func() {
		// ctx may already be cancelled.
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logrus.WithError(err).Warn("Could not release run lock")
		}
	}
	return release, true, nil
}

// NewLocker returns a Redis-backed lock when redisURL is set and a local
// one otherwise. The returned close func releases the Redis connection.
func NewLocker(ctx context.Context, redisURL string) (Locker, func() error, error) {
	if redisURL == "" {
		return &LocalLock{}, func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logrus.Infof("Using Redis run lock at %s", opts.Addr)

	return &RedisLock{client: redislock.New(rdb), key: runLockKey, ttl: runLockTTL}, rdb.Close, nil
}
