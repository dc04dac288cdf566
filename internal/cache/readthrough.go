package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultReprobeInterval is how long a failed primary store is bypassed before it is tried again.
const DefaultReprobeInterval = 30 * time.Second

// ErrBackendUnavailable is returned by evictions that could not reach the primary store.
// The eviction is retried against the primary before it serves anything again.
var ErrBackendUnavailable = errors.New("cache backend unavailable")

// Options configures a Cache.
type Options struct {
	// Primary is the shared store. Nil runs the cache on the in-process store alone.
	Primary         Store
	Fallback        *MemoryStore
	ReprobeInterval time.Duration
	Now             func() time.Time
}

// Stats is a snapshot of cache health.
type Stats struct {
	Backend         string `json:"backend"`
	Degraded        bool   `json:"degraded"`
	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	Fallbacks       uint64 `json:"fallbacks"`
	FallbackEntries int    `json:"fallbackEntries"`

	// PendingEvictions counts evictions waiting for the primary to come back.
	PendingEvictions int `json:"pendingEvictions"`
}

// eviction is a Delete or DeleteByPrefix the primary missed while it was unavailable.
type eviction struct {
	key    string
	prefix bool
}

// Cache is a read-through cache over a primary Store with an in-process fallback.
// Transport errors from the primary never reach reads and writes; they switch the cache
// into degraded mode, where every operation is served by the fallback until the reprobe
// interval elapses and the primary is tried again. Evictions the primary missed are
// reported as ErrBackendUnavailable and replayed before it serves again.
type Cache struct {
	primary  Store
	fallback *MemoryStore
	reprobe  time.Duration
	now      func() time.Time
	logger   *logrus.Logger
	group    singleflight.Group

	mu            sync.Mutex
	degraded      bool
	degradedUntil time.Time
	pending       []eviction

	hits      atomic.Uint64
	misses    atomic.Uint64
	fallbacks atomic.Uint64
}

// New creates a Cache. A missing fallback store is created on the same clock.
func New(opts Options, logger *logrus.Logger) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReprobeInterval <= 0 {
		opts.ReprobeInterval = DefaultReprobeInterval
	}
	if opts.Fallback == nil {
		opts.Fallback = NewMemoryStore(opts.Now)
	}
	return &Cache{
		primary:  opts.Primary,
		fallback: opts.Fallback,
		reprobe:  opts.ReprobeInterval,
		now:      opts.Now,
		logger:   logger,
	}
}

// usePrimary reports whether the primary store should be tried for this call.
// Once the degraded window has elapsed the call itself acts as the probe.
func (c *Cache) usePrimary() bool {
	if c.primary == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.degraded || !c.now().Before(c.degradedUntil)
}

// primaryReady is usePrimary followed by replaying missed evictions, so a recovered
// primary never serves an entry that was evicted while it was down.
func (c *Cache) primaryReady(ctx context.Context) bool {
	return c.usePrimary() && c.replayEvictions(ctx)
}

func (c *Cache) deferEviction(ev eviction) {
	c.mu.Lock()
	c.pending = append(c.pending, ev)
	c.mu.Unlock()
}

func (c *Cache) replayEvictions(ctx context.Context) bool {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	if len(pending) == 0 {
		return true
	}

	for i, ev := range pending {
		var err error
		if ev.prefix {
			_, err = c.primary.DeleteByPrefix(ctx, ev.key)
		} else {
			err = c.primary.Delete(ctx, ev.key)
		}
		if err != nil {
			c.mu.Lock()
			c.pending = append(pending[i:], c.pending...)
			c.mu.Unlock()
			c.markDegraded("replay", ev.key, err)
			return false
		}
	}
	c.logger.WithFields(logrus.Fields{"backend": c.primary.Name(), "evictions": len(pending)}).
		Info("replayed evictions missed while the cache backend was unavailable")
	return true
}

func (c *Cache) markDegraded(op, key string, err error) {
	c.fallbacks.Add(1)
	c.mu.Lock()
	wasDegraded := c.degraded
	c.degraded = true
	c.degradedUntil = c.now().Add(c.reprobe)
	c.mu.Unlock()

	entry := c.logger.WithFields(logrus.Fields{"backend": c.primary.Name(), "op": op, "key": key}).WithError(err)
	if wasDegraded {
		entry.Debug("cache backend still unavailable")
		return
	}
	entry.Warn("cache backend unavailable, serving from in-process store")
}

func (c *Cache) markHealthy() {
	c.mu.Lock()
	recovered := c.degraded
	c.degraded = false
	c.mu.Unlock()
	if recovered {
		c.logger.WithField("backend", c.primary.Name()).Info("cache backend recovered")
	}
}

// Get returns the raw value stored under key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.primaryReady(ctx) {
		value, ok, err := c.primary.Get(ctx, key)
		if err == nil {
			c.markHealthy()
			return value, ok
		}
		c.markDegraded("get", key, err)
	}
	value, ok, _ := c.fallback.Get(ctx, key)
	return value, ok
}

// Set writes to the active store and mirrors the entry into the in-process store.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.primaryReady(ctx) {
		if err := c.primary.Set(ctx, key, value, ttl); err != nil {
			c.markDegraded("set", key, err)
		} else {
			c.markHealthy()
		}
	}
	_ = c.fallback.Set(ctx, key, value, ttl)
}

func (c *Cache) Exists(ctx context.Context, key string) bool {
	if c.primaryReady(ctx) {
		ok, err := c.primary.Exists(ctx, key)
		if err == nil {
			c.markHealthy()
			return ok
		}
		c.markDegraded("exists", key, err)
	}
	ok, _ := c.fallback.Exists(ctx, key)
	return ok
}

// Delete removes key from both stores. When the primary cannot be reached the eviction is
// queued for replay and ErrBackendUnavailable is returned.
func (c *Cache) Delete(ctx context.Context, key string) error {
	_ = c.fallback.Delete(ctx, key)
	if c.primary == nil {
		return nil
	}
	ev := eviction{key: key}
	if !c.primaryReady(ctx) {
		c.deferEviction(ev)
		return ErrBackendUnavailable
	}
	if err := c.primary.Delete(ctx, key); err != nil {
		c.markDegraded("delete", key, err)
		c.deferEviction(ev)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	c.markHealthy()
	return nil
}

// DeleteByPrefix evicts every key starting with prefix from both stores and returns the
// number of entries removed. Without a primary that is the in-process count. When the
// primary cannot be reached the eviction is queued for replay and ErrBackendUnavailable
// is returned with a count of zero.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	local, _ := c.fallback.DeleteByPrefix(ctx, prefix)
	if c.primary == nil {
		return local, nil
	}
	ev := eviction{key: prefix, prefix: true}
	if !c.primaryReady(ctx) {
		c.deferEviction(ev)
		return 0, ErrBackendUnavailable
	}
	n, err := c.primary.DeleteByPrefix(ctx, prefix)
	if err != nil {
		c.markDegraded("delete_prefix", prefix, err)
		c.deferEviction(ev)
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	c.markHealthy()
	return n, nil
}

type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Cleanup sweeps expired entries from the in-process store and, when the primary keeps
// expired rows around, from the primary too.
func (c *Cache) Cleanup(ctx context.Context) int {
	removed := c.fallback.Cleanup()
	if purger, ok := c.primary.(expiredPurger); ok && c.primaryReady(ctx) {
		n, err := purger.PurgeExpired(ctx)
		if err != nil {
			c.markDegraded("purge", "", err)
		} else {
			removed += n
		}
	}
	c.logger.WithField("removed", removed).Debug("cache cleanup finished")
	return removed
}

func (c *Cache) Stats() Stats {
	backend := c.fallback.Name()
	if c.primary != nil {
		backend = c.primary.Name()
	}
	c.mu.Lock()
	degraded := c.degraded
	pending := len(c.pending)
	c.mu.Unlock()
	return Stats{
		Backend:          backend,
		Degraded:         degraded,
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		Fallbacks:        c.fallbacks.Load(),
		FallbackEntries:  c.fallback.Len(),
		PendingEvictions: pending,
	}
}

// Close releases the primary store.
func (c *Cache) Close() error {
	if c.primary == nil {
		return nil
	}
	return c.primary.Close()
}

// GetOrCompute returns the value cached under key, computing and storing it on a miss.
// Concurrent misses on the same key share one computation, which is detached from the
// cancellation of whichever caller started it; each caller stops waiting when its own
// context is done. Errors from compute are returned unchanged and never cached.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok := c.Get(ctx, key); ok {
		var value T
		err := json.Unmarshal(raw, &value)
		if err == nil {
			c.hits.Add(1)
			return value, nil
		}
		c.logger.WithField("key", key).WithError(err).Warn("discarding undecodable cache entry")
	}
	c.misses.Add(1)

	shared := context.WithoutCancel(ctx)
	results := c.group.DoChan(key, func() (any, error) {
		value, err := compute(shared)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			c.logger.WithField("key", key).WithError(err).Warn("failed to encode cache entry")
			return value, nil
		}
		c.Set(shared, key, raw, ttl)
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
