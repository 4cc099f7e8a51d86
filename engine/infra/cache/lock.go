package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/orderetl/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another process owns the run lock.
var ErrLockHeld = errors.New("another run holds the lock")

const DefaultLockTTL = 30 * time.Minute

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Scripter is the part of the Redis client used by RunLock.
type Scripter interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RunLock is a single-key mutual exclusion lock with a TTL. The TTL bounds
// how long a crashed holder blocks later runs.
type RunLock struct {
	client Scripter
	key    string
	ttl    time.Duration
}

func NewRunLock(client Scripter, key string, ttl time.Duration) (*RunLock, error) {
	if client == nil {
		return nil, fmt.Errorf("cache: redis client is required")
	}
	if key == "" {
		return nil, fmt.Errorf("cache: lock key is required")
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RunLock{client: client, key: key, ttl: ttl}, nil
}

// Acquire takes the lock without waiting. The returned func releases it and
// is a no-op once the lock expired or was taken over.
func (l *RunLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, l.key)
	}
	logger.FromContext(ctx).Debug("Run lock acquired", "key", l.key, "ttl", l.ttl)
	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release run lock %s: %w", l.key, err)
		}
		if n == 0 {
			logger.FromContext(ctx).Warn("Run lock expired before release", "key", l.key)
		}
		return nil
	}, nil
}
