package httpapi

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cachedEntry is one TTL-stamped cache slot.
type cachedEntry struct {
	payload  any
	cachedAt time.Time
}

// statusCache is the bounded-cost cache backing /status and /people-count:
// an LRU of at most a handful of entries (one per distinct cache key this
// process ever uses), each valid for ttl, guarded by a channel-based
// try-lock rather than a plain mutex so a caller that can't acquire it
// within lockTimeout falls back to the previous cached payload instead of
// blocking a request thread.
type statusCache struct {
	lock        chan struct{}
	ttl         time.Duration
	lockTimeout time.Duration
	entries     *lru.Cache[string, cachedEntry]
}

func newStatusCache(capacity int, ttl, lockTimeout time.Duration) *statusCache {
	entries, _ := lru.New[string, cachedEntry](capacity)
	lock := make(chan struct{}, 1)
	lock <- struct{}{}
	return &statusCache{lock: lock, ttl: ttl, lockTimeout: lockTimeout, entries: entries}
}

// GetOrCompute returns the cached payload for key if still within ttl,
// otherwise computes, caches, and returns a fresh one. If the cache lock
// can't be acquired within lockTimeout, it returns whatever was last cached
// for key (stale or not) rather than block the request; only a cold cache
// with no prior entry falls through to an uncached compute in that case.
func (c *statusCache) GetOrCompute(key string, compute func() any) any {
	select {
	case <-c.lock:
	case <-time.After(c.lockTimeout):
		if entry, ok := c.entries.Get(key); ok {
			return entry.payload
		}
		return compute()
	}
	defer func() { c.lock <- struct{}{} }()

	if entry, ok := c.entries.Get(key); ok && time.Since(entry.cachedAt) < c.ttl {
		return entry.payload
	}

	payload := compute()
	c.entries.Add(key, cachedEntry{payload: payload, cachedAt: time.Now()})
	return payload
}
