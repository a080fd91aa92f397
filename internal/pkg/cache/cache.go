// Package cache provides short-lived byte caches for read models.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values by key. A miss is reported with ok == false and
// a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
