package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LRU is a bounded cache whose entries expire after a fixed TTL.
// Concurrent loads of the same missing key are collapsed into one.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[K]*list.Element
	recency  *list.List
	nowFn    func() time.Time
	group    singleflight.Group
	keyFn    func(K) string

	hits   int64
	misses int64
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// NewLRU creates a cache holding at most capacity entries for ttl each.
// keyFn renders keys for load de-duplication.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration, keyFn func(K) string) *LRU[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*list.Element, capacity),
		recency:  list.New(),
		nowFn:    time.Now,
		keyFn:    keyFn,
	}
}

// Get returns the live value for key.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if ok {
		e := elem.Value.(*entry[K, V])
		if c.nowFn().Before(e.expiresAt) {
			c.recency.MoveToFront(elem)
			c.hits++
			return e.value, true
		}
		c.drop(elem)
	}
	c.misses++
	var zero V
	return zero, false
}

// Put stores value under key, evicting the least recently used entry when full.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.nowFn().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[K, V])
		e.value, e.expiresAt = value, expiresAt
		c.recency.MoveToFront(elem)
		return
	}
	for c.recency.Len() >= c.capacity {
		c.drop(c.recency.Back())
	}
	c.items[key] = c.recency.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
}

// GetOrLoad returns the cached value or calls load once per key, caching
// only successful results. The second return reports a cache hit.
func (c *LRU[K, V]) GetOrLoad(ctx context.Context, key K, load func(context.Context) (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	res, err, _ := c.group.Do(c.keyFn(key), func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}

// Invalidate removes key.
func (c *LRU[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.drop(elem)
	}
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Stats returns hit and miss counts.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *LRU[K, V]) drop(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.items, elem.Value.(*entry[K, V]).key)
}
