package cache

import (
	"context"
	"errors"
	"time"

	"github.com/helixdata/metasearch/internal/db"
)

// kvStore is the consumer interface for a shared key-value backend.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Redis adapts a shared key-value store to the Cache contract so several
// instances can share one result cache.
type Redis struct {
	store kvStore
	ttl   time.Duration
}

// NewRedis creates a redis-backed cache with the given entry TTL.
func NewRedis(store kvStore, ttl time.Duration) *Redis {
	return &Redis{store: store, ttl: ttl}
}

// Get returns the cached value or ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return value, nil
}

// Put stores a value with the configured TTL.
func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	return r.store.SetWithTTL(ctx, key, value, r.ttl)
}
