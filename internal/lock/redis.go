package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	redisKeyPrefix   = "crateflow:lock:"
	minRetryInterval = 10 * time.Millisecond
	maxRetryInterval = 200 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

// RedisLocker shares locks across service instances. The TTL bounds how long a
// crashed holder can block others.
type RedisLocker struct {
	client      *redis.Client
	script      *redis.Script
	ttl         time.Duration
	waitTimeout time.Duration
	log         *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl, waitTimeout time.Duration, log *zap.Logger) *RedisLocker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{
		client:      client,
		script:      redis.NewScript(lockReleaseScript),
		ttl:         ttl,
		waitTimeout: waitTimeout,
		log:         log.Named("lock.redis"),
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if l.ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redisKeyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	if l.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.waitTimeout)
		defer cancel()
	}

	interval := minRetryInterval
	for {
		token, ok, err := l.TryLock(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, timeoutErr(key, ctx.Err())
			}
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
					defer cancel()
					if err := l.release(releaseCtx, key, token); err != nil {
						l.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
					}
				})
			}, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, timeoutErr(key, ctx.Err())
		case <-timer.C:
		}
		interval *= 2
		if interval > maxRetryInterval {
			interval = maxRetryInterval
		}
	}
}

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{redisKeyPrefix + key}, token).Err()
}

var _ Locker = (*RedisLocker)(nil)
