package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is a process-local cache backed by an expirable LRU. Entries are
// evicted by capacity or TTL; per-key operations are atomic.
type Memory struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemory creates an in-memory cache holding up to size entries for at
// most ttl. A zero ttl disables time-based expiry.
func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get returns the cached value or ErrMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return value, nil
}

// Put stores a value. Last writer wins under concurrent puts for one key.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.lru.Add(key, value)
	return nil
}
