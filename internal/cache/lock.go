package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when a lock could not be acquired in time.
var ErrLockBusy = errors.New("system busy, please try again later (lock)")

// Locker serializes work on a key, within one process or across instances.
type Locker interface {
	// Lock blocks until key is held or the attempt gives up. The returned
	// func releases the lock and is safe to call more than once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ItemLockKey is the lock key for one inventory item.
func ItemLockKey(tableID, itemID string) string {
	return fmt.Sprintf("lock:inventory:%s:%s", tableID, itemID)
}

// ============================================================================
// Local
// ============================================================================

type localLock struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is a keyed mutex for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lk, false)
		return nil, fmt.Errorf("%w: %v", ErrLockBusy, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, lk, true) })
	}, nil
}

func (l *LocalLocker) release(key string, lk *localLock, held bool) {
	if held {
		<-lk.ch
	}
	l.mu.Lock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// ============================================================================
// Redis
// ============================================================================

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockerConfig tunes lock acquisition.
type RedisLockerConfig struct {
	TTL        time.Duration
	Attempts   int
	RetryDelay time.Duration
}

// RedisLocker implements Locker with SET NX PX and a per-holder token.
type RedisLocker struct {
	client *redis.Client
	cfg    RedisLockerConfig
}

// NewRedisLocker creates a Redis-backed locker. Zero config fields take
// defaults: 5s TTL, 3 attempts, 100ms between attempts.
func NewRedisLocker(client *redis.Client, cfg RedisLockerConfig) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	return &RedisLocker{client: client, cfg: cfg}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()

	var lastErr error
	for i := 0; i < l.cfg.Attempts; i++ {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			lastErr = err
		} else if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					// The caller's context may already be done.
					_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
				})
			}, nil
		}

		if i == l.cfg.Attempts-1 {
			break
		}
		select {
		case <-time.After(l.cfg.RetryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockBusy, ctx.Err())
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockBusy, lastErr)
	}
	return nil, ErrLockBusy
}
