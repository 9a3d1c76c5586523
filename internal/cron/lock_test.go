package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type memoryLockStore struct {
	values map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) ExpireIfValue(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	return m.values[key] == value, nil
}

func (m *memoryLockStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExclusiveAndOwnerChecked(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{values: map[string]string{}}
	a, err := NewRedisLock(store, "sf:lock:cron-worker", "cron-worker@a", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	b, _ := NewRedisLock(store, "sf:lock:cron-worker", "cron-worker@b", 0)

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatalf("expected a to acquire")
	}
	if !strings.HasPrefix(store.values["sf:lock:cron-worker"], "cron-worker@a/") {
		t.Fatalf("expected holder prefix, got %q", store.values["sf:lock:cron-worker"])
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatalf("expected b to be refused")
	}
	if err := b.Extend(ctx); !errors.Is(err, ErrLockLost) {
		t.Fatalf("non-holder extend should report lost lock, got %v", err)
	}
	if err := a.Extend(ctx); err != nil {
		t.Fatalf("holder extend: %v", err)
	}

	// TTL lapse: b takes over, a must notice on its next extend
	delete(store.values, "sf:lock:cron-worker")
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatalf("expected b to acquire after lapse")
	}
	if err := a.Extend(ctx); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected a to lose the lock, got %v", err)
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := store.values["sf:lock:cron-worker"]; !ok {
		t.Fatalf("a must not release b's lock")
	}
	if err := b.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(store.values) != 0 {
		t.Fatalf("expected lock freed")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", "h", 0); err == nil {
		t.Fatalf("expected nil client to fail")
	}
	if _, err := NewRedisLock(&memoryLockStore{}, "", "h", 0); err == nil {
		t.Fatalf("expected empty key to fail")
	}
}
