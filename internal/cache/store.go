// Package cache provides the read-through cache in front of the statistics engine
// and the key/value stores backing it.
package cache

import (
	"context"
	"time"
)

// TTLs by data class; volatile PR statistics expire fastest.
const (
	TTLSession     = 24 * time.Hour
	TTLBranches    = time.Hour
	TTLMaintainers = 30 * time.Minute
	TTLRepoStats   = 5 * time.Minute
	TTLUserStats   = 10 * time.Minute
)

// Store is a key/value backend with per-entry expiry. A ttl <= 0 stores the entry without expiry.
// Get reports a miss as (nil, false, nil); errors are reserved for transport failures.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
