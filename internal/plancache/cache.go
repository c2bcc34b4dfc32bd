// Package plancache provides a bounded, concurrency-safe cache of compiled
// plans keyed by query shape.
//
// Keys are spread over shards selected by SipHash, each with its own lock.
// When several goroutines miss on the same key at once, the first one
// computes the value and the others wait for its result.
package plancache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/dchest/siphash"
	"golang.org/x/sync/singleflight"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 16

// Fixed SipHash keys. Shard selection only needs an even spread, not
// secrecy.
const (
	k0 = 0x7a3c1e9d5b2f4806
	k1 = 0xc4e1f09a38d6b527
)

// Stats reports cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// Cache maps string keys to values of type V. The zero value is not
// usable; create caches with New.
type Cache[V any] struct {
	shards []*shard[V]
	group  singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type shard[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // insertion order, oldest at the back
	max     int
}

type entry[V any] struct {
	key   string
	value V
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	shards int
}

// WithShards sets the number of shards. Values below one are ignored.
func WithShards(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shards = n
		}
	}
}

// New creates a cache holding at most capacity entries in total. Capacity
// is divided evenly between shards; each shard holds at least one entry.
func New[V any](capacity int, opts ...Option) *Cache[V] {
	cfg := config{shards: DefaultShards}
	for _, opt := range opts {
		opt(&cfg)
	}
	if capacity < cfg.shards {
		cfg.shards = max(capacity, 1)
	}
	perShard := max((capacity+cfg.shards-1)/cfg.shards, 1)

	c := &Cache[V]{shards: make([]*shard[V], cfg.shards)}
	for i := range c.shards {
		c.shards[i] = &shard[V]{
			entries: make(map[string]*list.Element),
			order:   list.New(),
			max:     perShard,
		}
	}
	return c
}

func (c *Cache[V]) shardFor(key string) *shard[V] {
	h := siphash.Hash(k0, k1, []byte(key))
	return c.shards[h%uint64(len(c.shards))]
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.shardFor(key).get(key)
	if ok {
		c.hits.Add(1)
	}
	return v, ok
}

// GetOrCompute returns the cached value for key, calling compute on a
// miss. Concurrent misses on one key share a single call; errors are
// returned to every waiter and nothing is cached.
func (c *Cache[V]) GetOrCompute(key string, compute func() (V, error)) (V, bool, error) {
	s := c.shardFor(key)
	if v, ok := s.get(key); ok {
		c.hits.Add(1)
		return v, true, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// A previous flight may have finished between the lookup and Do.
		if v, ok := s.get(key); ok {
			return v, nil
		}
		c.misses.Add(1)
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.evictions.Add(int64(s.put(key, v)))
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}

// Delete removes key from the cache.
func (c *Cache[V]) Delete(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[key]; ok {
		s.order.Remove(el)
		delete(s.entries, key)
	}
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.Len(),
	}
}

// Clear removes every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[string]*list.Element)
		s.order.Init()
		s.mu.Unlock()
	}
}

func (s *shard[V]) get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[key]; ok {
		return el.Value.(*entry[V]).value, true
	}
	var zero V
	return zero, false
}

// put stores value and evicts the oldest-inserted entries beyond the shard
// capacity. It returns the number of evicted entries.
func (s *shard[V]) put(key string, value V) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[key]; ok {
		el.Value.(*entry[V]).value = value
		return 0
	}
	s.entries[key] = s.order.PushFront(&entry[V]{key: key, value: value})

	evicted := 0
	for s.order.Len() > s.max {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*entry[V]).key)
		evicted++
	}
	return evicted
}
