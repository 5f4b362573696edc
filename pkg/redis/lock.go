package redis

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLockPrefix namespaces lock keys
	DefaultLockPrefix = "lock:"

	minRetryDelay = 10 * time.Millisecond
	maxRetryDelay = 250 * time.Millisecond
)

var (
	// ErrLockNotAcquired is returned when another holder owns the key
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when the lock expired or was taken over before release
	ErrLockNotHeld = errors.New("lock not held")
)

// compare-and-delete so a holder whose TTL ran out cannot free someone else's lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out SET NX locks with an owner token.
type Locker struct {
	client *Client
	prefix string
}

// Lock is a held lock.
type Lock struct {
	client *Client
	key    string
	token  string
}

// NewLocker creates a Locker. An empty prefix means DefaultLockPrefix.
func NewLocker(client *Client, prefix string) *Locker {
	if prefix == "" {
		prefix = DefaultLockPrefix
	}
	return &Locker{client: client, prefix: prefix}
}

// Acquire makes one attempt to take key for ttl.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{client: l.client, key: l.prefix + key, token: uuid.NewString()}

	ok, err := l.client.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock %s", lock.key)
	return lock, nil
}

// TryAcquire keeps attempting Acquire with jittered backoff for up to wait.
// Cancellation of ctx is returned as ctx.Err(); running out of wait is ErrLockNotAcquired.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl, wait time.Duration) (*Lock, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	delay := minRetryDelay
	for {
		lock, err := l.Acquire(ctx, key, ttl)
		if !errors.Is(err, ErrLockNotAcquired) {
			return lock, err
		}

		sleep := delay/2 + rand.N(delay/2+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrLockNotAcquired
		case <-time.After(sleep):
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

// Key returns the full redis key of the lock.
func (lock *Lock) Key() string {
	return lock.key
}

// Release frees the lock if this holder still owns it.
func (lock *Lock) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.token).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}

	lock.client.logger.WithContext(ctx).Debugf("Released lock %s", lock.key)
	return nil
}
