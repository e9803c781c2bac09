// Package resolvercache decorates a backend.Resolver with a small bounded
// TTL cache keyed by shard cookie: a struct wrapping a concurrent map,
// entries reused or pruned on read. It exists so repeated GetBackend calls
// for the same shard don't all have to pay the resolver's full latency if
// a very recent successful resolution is already on hand. RefreshBackend
// is never served from the cache.
package resolvercache

import (
	"context"
	"sync"
	"time"

	"github.com/shardcx/shardcx/backend"
)

// Cache wraps a backend.Resolver, short-circuiting GetBackend calls that
// land within ttl of a prior successful resolution for the same cookie.
// RefreshBackend always calls through and stores its result. It is safe for
// concurrent use.
type Cache struct {
	next backend.Resolver
	ttl  time.Duration
	now  func() time.Time

	entries sync.Map // cookie uint64 -> entry
}

type entry struct {
	info   backend.Info
	expiry time.Time
}

// New wraps next with a cache of the given ttl. A ttl of zero disables
// caching entirely (every call passes straight through to next).
func New(next backend.Resolver, ttl time.Duration) *Cache {
	return &Cache{next: next, ttl: ttl, now: time.Now}
}

func (c *Cache) GetBackend(ctx context.Context, cookie uint64) (backend.Info, error) {
	if info, ok := c.lookup(cookie); ok {
		return info, nil
	}
	info, err := c.next.GetBackend(ctx, cookie)
	if err != nil {
		return backend.Info{}, err
	}
	c.store(cookie, info)
	return info, nil
}

func (c *Cache) RefreshBackend(ctx context.Context, cookie uint64, stale backend.Info) (backend.Info, error) {
	info, err := c.next.RefreshBackend(ctx, cookie, stale)
	if err != nil {
		return backend.Info{}, err
	}
	c.store(cookie, info)
	return info, nil
}

func (c *Cache) lookup(cookie uint64) (backend.Info, bool) {
	if c.ttl <= 0 {
		return backend.Info{}, false
	}
	v, ok := c.entries.Load(cookie)
	if !ok {
		return backend.Info{}, false
	}
	e := v.(entry)
	if c.now().After(e.expiry) {
		c.entries.Delete(cookie)
		return backend.Info{}, false
	}
	return e.info, true
}

func (c *Cache) store(cookie uint64, info backend.Info) {
	if c.ttl <= 0 {
		return
	}
	c.entries.Store(cookie, entry{info: info, expiry: c.now().Add(c.ttl)})
}

var _ backend.Resolver = (*Cache)(nil)
