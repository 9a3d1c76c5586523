package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/redis"
)

const (
	guardScope    = "gateway-callback"
	guardInFlight = "in-flight"
)

type guardStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// CallbackGuard remembers processed callback deliveries in Redis so replays
// can redirect without a transaction. The database checks stay authoritative;
// a miss or an in-flight marker always falls through to full processing.
type CallbackGuard struct {
	store guardStore
	ttl   time.Duration
}

func NewCallbackGuard(store guardStore, ttl time.Duration) (*CallbackGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &CallbackGuard{store: store, ttl: ttl}, nil
}

// Begin marks key in flight. It returns the cached result when the delivery
// was already completed.
func (g *CallbackGuard) Begin(ctx context.Context, key string) (*CallbackResult, error) {
	if key == "" {
		return nil, errors.New("guard key is required")
	}
	k := g.store.IdempotencyKey(guardScope, key)
	set, err := g.store.SetNX(ctx, k, guardInFlight, g.ttl)
	if err != nil {
		return nil, fmt.Errorf("set idempotency key: %w", err)
	}
	if set {
		return nil, nil
	}
	value, err := g.store.Get(ctx, k)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}
	if value == guardInFlight {
		return nil, nil
	}
	var cached CallbackResult
	if err := json.Unmarshal([]byte(value), &cached); err != nil {
		return nil, nil
	}
	cached.Replayed = true
	return &cached, nil
}

// Complete stores the final result for key.
func (g *CallbackGuard) Complete(ctx context.Context, key string, result *CallbackResult) error {
	if key == "" || result == nil {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, g.store.IdempotencyKey(guardScope, key), string(payload), g.ttl)
}

// Abort forgets key so the gateway's own retry is processed again.
func (g *CallbackGuard) Abort(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(guardScope, key))
}
