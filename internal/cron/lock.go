package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// a crashed holder blocks sweeps for at most this long
const defaultLockTTL = 5 * time.Minute

// ErrLockLost is returned by Extend when another holder took over after the
// TTL lapsed.
var ErrLockLost = errors.New("cron lock lost")

// Lock coordinates exclusive sweeper runs across cron-worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a SETNX lock whose value names the holder, so only the holder
// can extend or release it.
type RedisLock struct {
	client lockStore
	key    string
	holder string
	ttl    time.Duration
	token  string
}

// NewRedisLock builds a lock on key. holder is a readable instance name that
// prefixes the per-acquisition token.
func NewRedisLock(client lockStore, key, holder string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if holder == "" {
		holder = "cron"
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, holder: holder, ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := l.holder + "/" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Extend pushes the TTL out again. It fails with ErrLockLost when the key no
// longer carries this holder's token.
func (l *RedisLock) Extend(ctx context.Context) error {
	if l.token == "" {
		return ErrLockLost
	}
	ok, err := l.client.ExpireIfValue(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	if !ok {
		l.token = ""
		return ErrLockLost
	}
	return nil
}

// Release frees the lock if this holder still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.client.DeleteIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}
