package engine

import (
	"strings"
	"time"
)

const (
	cacheNext  = "next"
	cacheStats = "stats"
)

type cacheEntry struct {
	value   any
	expires time.Time
}

// ttlCache is a per-pack result cache. It is guarded by the engine mutex.
type ttlCache struct {
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func cacheKey(packID, kind string) string {
	return packID + "|" + kind
}

func (c *ttlCache) get(packID, kind string, now time.Time) (any, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	key := cacheKey(packID, kind)
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !now.Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *ttlCache) set(packID, kind string, value any, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.entries[cacheKey(packID, kind)] = cacheEntry{value: value, expires: now.Add(c.ttl)}
}

// drop removes one cached result of the pack.
func (c *ttlCache) drop(packID, kind string) {
	delete(c.entries, cacheKey(packID, kind))
}

// invalidate drops every cached result of the pack.
func (c *ttlCache) invalidate(packID string) {
	prefix := packID + "|"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}
