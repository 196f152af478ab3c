// Package cache is a size-bounded loading cache keyed by string.
//
// Two write policies are supported. ExpireAfterWrite drops an entry once
// its TTL has passed and the next Get loads a fresh value. RefreshAfterWrite
// keeps serving a stale entry and starts at most one background reload for
// it; a failed reload leaves the old value in place.
//
// Concurrent Gets for the same missing key share a single load.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

type Policy int

const (
	ExpireAfterWrite Policy = iota
	RefreshAfterWrite
)

const defaultSize = 100

// LoadFunc produces the value for key.
type LoadFunc[V any] func(ctx context.Context, key string) (V, error)

type entry[V any] struct {
	value     V
	createdAt time.Time
}

type options struct {
	size          int
	ttl           time.Duration
	policy        Policy
	now           func() time.Time
	onReloadError func(key string, err error)
}

type Option func(*options)

// WithSize bounds the number of entries; the least recently used is evicted.
func WithSize(n int) Option {
	return func(o *options) { o.size = n }
}

// WithTTL sets how long an entry stays fresh. Zero means forever.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithReloadErrorHandler is called when a background reload fails.
func WithReloadErrorHandler(fn func(key string, err error)) Option {
	return func(o *options) { o.onReloadError = fn }
}

type Cache[V any] struct {
	entries *lru.Cache[string, entry[V]]
	group   singleflight.Group
	load    LoadFunc[V]
	opts    options

	mu        sync.Mutex
	reloading map[string]struct{}
	reloads   sync.WaitGroup
}

func New[V any](load LoadFunc[V], opts ...Option) *Cache[V] {
	o := options{
		size:          defaultSize,
		now:           time.Now,
		onReloadError: func(string, error) {},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.size <= 0 {
		o.size = defaultSize
	}

	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, entry[V]](o.size)

	return &Cache[V]{
		entries:   entries,
		load:      load,
		opts:      o,
		reloading: make(map[string]struct{}),
	}
}

// Get returns the cached value for key, loading it when absent or expired.
// Under RefreshAfterWrite a stale value is returned without blocking.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	if e, ok := c.entries.Get(key); ok {
		if c.fresh(e) {
			return e.value, nil
		}
		if c.opts.policy == RefreshAfterWrite {
			c.refresh(key)
			return e.value, nil
		}
		c.entries.Remove(key)
	}
	return c.loadAndStore(ctx, key)
}

// Invalidate drops key.
func (c *Cache[V]) Invalidate(key string) {
	c.entries.Remove(key)
}

func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

func (c *Cache[V]) fresh(e entry[V]) bool {
	return c.opts.ttl <= 0 || c.opts.now().Sub(e.createdAt) < c.opts.ttl
}

func (c *Cache[V]) loadAndStore(ctx context.Context, key string) (V, error) {
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, err := c.load(ctx, key)
		if err != nil {
			return value, err
		}
		c.entries.Add(key, entry[V]{value: value, createdAt: c.opts.now()})
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	value, _ := v.(V)
	return value, nil
}

func (c *Cache[V]) refresh(key string) {
	c.mu.Lock()
	if _, busy := c.reloading[key]; busy {
		c.mu.Unlock()
		return
	}
	c.reloading[key] = struct{}{}
	c.reloads.Add(1)
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.reloading, key)
			c.mu.Unlock()
			c.reloads.Done()
		}()

		if _, err := c.loadAndStore(context.Background(), key); err != nil {
			c.opts.onReloadError(key, err)
		}
	}()
}

// waitReloads blocks until background reloads started so far are done.
func (c *Cache[V]) waitReloads() {
	c.reloads.Wait()
}
