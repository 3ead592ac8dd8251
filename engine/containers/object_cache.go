package containers

import (
	"sync"
	"sync/atomic"
)

// Hashable is implemented by cache keys. Hash must be consistent with Eq:
// keys that compare equal must hash equal.
type Hashable[K any] interface {
	Hash() uint64
	Eq(other K) bool
}

type cacheEntry[K Hashable[K], V any] struct {
	key   K
	value *V
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits          uint64
	Misses        uint64
	Constructions uint64
	Entries       int
}

// ObjectCache is a content-addressed get-or-create cache. Entries live until
// Clear; the returned *V stays valid for that whole time.
//
// The lock is held while the constructor runs, so at most one construction
// happens per key and concurrent requests for the same key wait for it.
type ObjectCache[K Hashable[K], V any] struct {
	mu      sync.Mutex
	buckets map[uint64][]*cacheEntry[K, V]
	count   int

	hits          atomic.Uint64
	misses        atomic.Uint64
	constructions atomic.Uint64
}

func NewObjectCache[K Hashable[K], V any]() *ObjectCache[K, V] {
	return &ObjectCache[K, V]{
		buckets: make(map[uint64][]*cacheEntry[K, V]),
	}
}

func (c *ObjectCache[K, V]) lookup(hash uint64, key K) *cacheEntry[K, V] {
	for _, e := range c.buckets[hash] {
		if e.key.Eq(key) {
			return e
		}
	}
	return nil
}

// GetOrCreate returns the value stored under a key equal to key, building
// it with create on a miss. When create fails nothing is inserted and the
// error is returned as is.
func (c *ObjectCache[K, V]) GetOrCreate(key K, create func(K) (V, error)) (*V, error) {
	hash := key.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.lookup(hash, key); e != nil {
		c.hits.Add(1)
		return e.value, nil
	}
	c.misses.Add(1)

	v, err := create(key)
	if err != nil {
		return nil, err
	}
	c.constructions.Add(1)

	e := &cacheEntry[K, V]{key: key, value: &v}
	c.buckets[hash] = append(c.buckets[hash], e)
	c.count++
	return e.value, nil
}

// Find returns the cached value for key without creating one.
func (c *ObjectCache[K, V]) Find(key K) (*V, bool) {
	hash := key.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.lookup(hash, key); e != nil {
		return e.value, true
	}
	return nil, false
}

func (c *ObjectCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *ObjectCache[K, V]) Stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Constructions: c.constructions.Load(),
		Entries:       c.Len(),
	}
}

// Range calls fn for each entry until fn returns false. fn must not call
// back into the cache.
func (c *ObjectCache[K, V]) Range(fn func(key K, value *V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, bucket := range c.buckets {
		for _, e := range bucket {
			if !fn(e.key, e.value) {
				return
			}
		}
	}
}

// Clear drops every entry, handing each value to release first when
// release is non-nil. Pointers previously returned become invalid.
func (c *ObjectCache[K, V]) Clear(release func(key K, value *V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if release != nil {
		for _, bucket := range c.buckets {
			for _, e := range bucket {
				release(e.key, e.value)
			}
		}
	}
	c.buckets = make(map[uint64][]*cacheEntry[K, V])
	c.count = 0
}
