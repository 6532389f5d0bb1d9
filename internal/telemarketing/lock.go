package telemarketing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrBusy means another instance holds the lock for the same session.
var ErrBusy = errors.New("call session is busy, retry shortly")

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refMutex{}}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// sessionLocker serializes transitions of one session: in process with a
// keyed mutex, across instances with a Redis lock when a client is set.
type sessionLocker struct {
	local  *keyedMutex
	remote *redislock.Client
	ttl    time.Duration
}

func newSessionLocker(client *redis.Client, ttl time.Duration) *sessionLocker {
	l := &sessionLocker{local: newKeyedMutex(), ttl: ttl}
	if l.ttl <= 0 {
		l.ttl = 10 * time.Second
	}
	if client != nil {
		l.remote = redislock.New(client)
	}
	return l
}

func (l *sessionLocker) acquire(ctx context.Context, key string) (func(), error) {
	unlock := l.local.lock(key)
	if l.remote == nil {
		return unlock, nil
	}
	lock, err := l.remote.Obtain(ctx, "lock:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 5),
	})
	if err != nil {
		unlock()
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("obtain %s: %w", key, err)
	}
	return func() {
		// A release after TTL expiry reports ErrLockNotHeld; nothing to undo.
		_ = lock.Release(context.Background())
		unlock()
	}, nil
}
