// Package lock serializes read-modify-write sequences per key.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotAcquired is returned when the lock could not be taken before ctx was done.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker runs fn while holding exclusive access to key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// EventKey is the admission lock key for an event.
func EventKey(eventID uuid.UUID) string { return "event:" + eventID.String() }

// RegistrationKey is the lock key for single-registration updates.
func RegistrationKey(registrationID uuid.UUID) string { return "registration:" + registrationID.String() }

// AttendanceKey is the lock key for a registration's attendance document.
func AttendanceKey(registrationID uuid.UUID) string { return "attendance:" + registrationID.String() }

type localEntry struct {
	mu   sync.Mutex
	refs int
}

// Local is an in-process Locker (thread-safe). Entries are dropped once no caller holds or waits on them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{entries: make(map[string]*localEntry)}
}

// WithLock implements Locker.
func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	e := l.entries[key]
	if e == nil {
		e = &localEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotAcquired, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(ctx)
}

const (
	redisKeyPrefix = "lock:"
	retryInterval  = 25 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every instance talking to the same Redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis creates a Redis-backed locker. ttl bounds how long a crashed holder can block others;
// a live holder refreshes the key every ttl/3 until fn returns.
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// WithLock implements Locker. It polls until the key is free or ctx is done.
func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := redisKeyPrefix + key
	token := uuid.New().String()
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
			}
			return fmt.Errorf("setnx %s: %w", redisKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
		case <-time.After(retryInterval):
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go r.keepAlive(redisKey, token, stop, stopped)

	defer func() {
		close(stop)
		<-stopped
		// Release with a fresh context so a cancelled caller still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil {
			r.logger.Warn("release lock failed", zap.String("key", redisKey), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func (r *Redis) keepAlive(redisKey, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
		n, err := extendScript.Run(ctx, r.client, []string{redisKey}, token, r.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			r.logger.Warn("extend lock failed", zap.String("key", redisKey), zap.Error(err))
			continue
		}
		if n == 0 {
			r.logger.Warn("lock lost before release", zap.String("key", redisKey))
			return
		}
	}
}
