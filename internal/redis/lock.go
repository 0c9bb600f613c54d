package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("slot lock not acquired")

// Locker serialises work on one scheduling slot across API replicas.
type Locker interface {
	WithSlotLock(ctx context.Context, slot string, fn func(ctx context.Context) error) error
}

// SlotKey names the lock for a practitioner at an exact timestamp.
func SlotKey(practitionerID int64, at time.Time) string {
	return fmt.Sprintf("%d:%d", practitionerID, at.UTC().Unix())
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) Locker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &redisSlotLocker{client: client, ttl: ttl}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slot string, fn func(ctx context.Context) error) error {
	key := "lock:slot:" + slot
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	// release with a fresh context so a cancelled request still frees the key
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// NoopLocker runs fn directly. Used when Redis is disabled; the partial
// unique index on citas still keeps slots exclusive.
type NoopLocker struct{}

func (NoopLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
