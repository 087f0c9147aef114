// Package cache provides the result cache abstraction shared by the caching
// search layer and the lineage graph cache, plus structural key building.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMiss signals an absent cache entry. Backends map their own not-found
// signal to this; any other cache failure is treated as a miss by callers
// and must never fail the overall request.
var ErrMiss = errors.New("cache: miss")

// Cache is the minimal contract cache backends implement. TTL and eviction
// are backend configuration, not the caller's concern.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Key derives a cache key from the tuple of parameters that affect a result.
// Parts are encoded as canonical JSON before hashing, so structurally equal
// filters and sort criteria produce equal keys regardless of instance
// identity.
func Key(namespace string, parts ...any) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	for _, part := range parts {
		encoded, err := json.Marshal(part)
		if err != nil {
			// Key parts are plain data types; a marshal failure is a
			// programming error surfaced via a distinct key, not a panic.
			encoded = []byte(fmt.Sprintf("!%T", part))
		}
		h.Write([]byte{0})
		h.Write(encoded)
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}
