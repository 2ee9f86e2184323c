// Package cache provides the in-memory tier: a sharded map per entity kind
// holding copies of the last known good record for each key.
package cache

import (
	"fmt"
	"hash/maphash"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/tier"
	"github.com/parsascontentcorner/discordlitesync/pkg/logger"
)

const (
	// DefaultShards is the shard count used when none is configured
	DefaultShards = 16
)

// Cloner is implemented by every cacheable value. Clone must return a copy
// that shares no mutable state with the receiver
type Cloner[V any] interface {
	Clone() V
}

// Stats is a snapshot of cache counters
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Faults  uint64 `json:"faults"`
	Evicted uint64 `json:"evicted"`
}

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// Cache is a concurrent map from key to value. Values are copied on the way
// in and on the way out so no caller ever holds a reference into a shard
type Cache[K comparable, V Cloner[V]] struct {
	name       string
	seed       maphash.Seed
	shards     []*shard[K, V]
	mask       uint64
	maxEntries int
	logger     *zap.Logger

	hits    atomic.Uint64
	misses  atomic.Uint64
	faults  atomic.Uint64
	evicted atomic.Uint64
}

// Option configures a Cache
type Option func(*options)

type options struct {
	shards     int
	maxEntries int
	logger     *zap.Logger
}

// WithShards sets the shard count. It must be a power of two
func WithShards(n int) Option {
	return func(o *options) { o.shards = n }
}

// WithMaxEntriesPerShard bounds each shard. When a shard is full an arbitrary
// entry is evicted to make room. Zero means unbounded
func WithMaxEntriesPerShard(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// WithLogger sets the logger used to report lock faults
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a cache. The name is only used in log fields
func New[K comparable, V Cloner[V]](name string, opts ...Option) (*Cache[K, V], error) {
	o := options{shards: DefaultShards, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.shards <= 0 || o.shards&(o.shards-1) != 0 {
		return nil, fmt.Errorf("shard count must be a positive power of two, got %d", o.shards)
	}
	if o.maxEntries < 0 {
		return nil, fmt.Errorf("max entries per shard must not be negative, got %d", o.maxEntries)
	}

	c := &Cache[K, V]{
		name:       name,
		seed:       maphash.MakeSeed(),
		shards:     make([]*shard[K, V], o.shards),
		mask:       uint64(o.shards - 1),
		maxEntries: o.maxEntries,
		logger:     o.logger,
	}
	for i := range c.shards {
		c.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}

	return c, nil
}

func (c *Cache[K, V]) shardFor(key K) *shard[K, V] {
	return c.shards[maphash.Comparable(c.seed, key)&c.mask]
}

// Lookup returns a copy of the cached value. It reports tier.ErrNotFound on a
// miss and tier.ErrLockFault when the shard could not be read safely
func (c *Cache[K, V]) Lookup(key K) (v V, err error) {
	s := c.shardFor(key)

	defer func() {
		if r := recover(); r != nil {
			c.faults.Add(1)
			var zero V
			v, err = zero, fmt.Errorf("%w: %v", tier.ErrLockFault, r)
		}
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, tier.ErrNotFound
	}

	v = item.Clone()
	c.hits.Add(1)
	return v, nil
}

// Get returns a copy of the cached value. A lock fault is logged and reported
// as a miss
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, err := c.Lookup(key)
	if err == nil {
		return v, true
	}

	if !tier.IsNotFound(err) {
		c.logger.Warn("cache lookup failed, treating as miss", logger.TierFields(c.name, key, "cache.get", err)...)
	}

	var zero V
	return zero, false
}

// Put stores a copy of v under key, replacing any previous value
func (c *Cache[K, V]) Put(key K, v V) {
	s := c.shardFor(key)

	defer func() {
		if r := recover(); r != nil {
			c.faults.Add(1)
			c.logger.Warn("cache write failed",
				zap.String("kind", c.name),
				zap.Any("key", key),
				zap.String("op", "cache.put"),
				zap.Any("panic", r),
			)
		}
	}()

	item := v.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; !exists && c.maxEntries > 0 && len(s.items) >= c.maxEntries {
		for victim := range s.items {
			delete(s.items, victim)
			c.evicted.Add(1)
			break
		}
	}
	s.items[key] = item
}

// Delete drops key from the cache
func (c *Cache[K, V]) Delete(key K) {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len returns the number of cached entries
func (c *Cache[K, V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Name returns the name the cache was created with
func (c *Cache[K, V]) Name() string {
	return c.name
}

// Stats returns a snapshot of the cache counters
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Faults:  c.faults.Load(),
		Evicted: c.evicted.Load(),
	}
}
