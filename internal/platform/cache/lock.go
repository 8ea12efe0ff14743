package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockHeld is returned when another holder owns the key.
	ErrLockHeld = errors.New("platform/cache: lock held by another process")
	// ErrLockLost is returned when a lock expired and may have been taken over.
	ErrLockLost = errors.New("platform/cache: lock expired before extension")
)

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only when the key still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker acquires short-lived mutual exclusion keys in Redis (SET NX PX).
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewLocker returns a Locker whose locks expire after ttl.
func NewLocker(client redis.UniversalClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// Lock is a held lock. Release is safe to call more than once.
type Lock struct {
	client   redis.UniversalClient
	key      string
	token    string
	ttl      time.Duration
	deadline time.Time
}

// Acquire takes key or returns ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("platform/cache: locker not initialised")
	}
	token := uuid.NewString()
	now := time.Now()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("platform/cache: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: l.client, key: key, token: token, ttl: l.ttl, deadline: now.Add(l.ttl)}, nil
}

// Deadline is the latest time the lock is known to be ours. Work that must
// finish under the lock should not run past it.
func (lk *Lock) Deadline() time.Time {
	return lk.deadline
}

// Extend restarts the TTL. It returns ErrLockLost when the key expired or
// now belongs to someone else.
func (lk *Lock) Extend(ctx context.Context) error {
	now := time.Now()
	n, err := extendScript.Run(ctx, lk.client, []string{lk.key}, lk.token, lk.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("platform/cache: extend %s: %w", lk.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	lk.deadline = now.Add(lk.ttl)
	return nil
}

// Release frees the lock if it is still ours.
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("platform/cache: release %s: %w", lk.key, err)
	}
	return nil
}
