package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("practice lock not acquired")

const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 2 * time.Second
)

// Connect opens a redis client and verifies connectivity before handing it
// out; a dead redis should fail startup, not the first booking.
func Connect(addr, username, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Locker guards the booking critical section per practice, so two staff
// sessions cannot race their conflict checks for the same calendar.
type Locker interface {
	WithPracticeLock(ctx context.Context, practiceID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisPracticeLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPracticeLocker creates a locker that uses a per-practice Redis key.
func NewRedisPracticeLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisPracticeLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisPracticeLocker) WithPracticeLock(ctx context.Context, practiceID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:practice:%s", practiceID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire practice lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

// Release only deletes the key while it still holds our token, so an expired
// lock taken over by another writer is never yanked away.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisPracticeLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release practice lock: %w", err)
	}
	return nil
}
