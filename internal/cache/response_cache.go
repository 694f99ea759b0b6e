// Package cache implements the three caches the engine consults on every
// request: the response cache (dual expiration), the current block height,
// and in-flight request de-duplication (spec §3 CacheEntry/BlockHeight,
// §4.7 inflight handling).
package cache

import (
	"sync"
	"time"

	"github.com/decred/dcrd/lru"

	"github.com/directdev/directclient/internal/fingerprint"
	"github.com/directdev/directclient/internal/rpctypes"
)

// ResponseCache holds cached responses keyed by request fingerprint. When
// maxEntries is positive, entries beyond that count are evicted
// least-recently-used first via github.com/decred/dcrd/lru's generic cache,
// rather than growing unbounded; maxEntries == 0 means no cap.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[fingerprint.Fingerprint]rpctypes.CacheEntry
	order   *lru.Cache[fingerprint.Fingerprint]
}

// NewResponseCache returns a cache. maxEntries <= 0 disables eviction.
func NewResponseCache(maxEntries int) *ResponseCache {
	c := &ResponseCache{entries: make(map[fingerprint.Fingerprint]rpctypes.CacheEntry)}
	if maxEntries > 0 {
		c.order = lru.NewCache[fingerprint.Fingerprint](uint(maxEntries))
	}
	return c
}

// Get returns the cached entry for fp if present and valid as of now,
// given the engine's current block height (empty currentHeight/haveHeight
// false means the engine has no current height cached). An invalid entry
// is evicted on this read path and reported as a miss (spec §3 CacheEntry
// invariants, I7) — ResponseCache does not otherwise proactively sweep
// block-height-bound entries except via InvalidateBlockBound.
func (c *ResponseCache) Get(fp fingerprint.Fingerprint, now time.Time, currentHeight string, haveHeight bool) (rpctypes.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fp]
	if !ok {
		return rpctypes.CacheEntry{}, false
	}
	if entryExpired(e, now, currentHeight, haveHeight) {
		delete(c.entries, fp)
		return rpctypes.CacheEntry{}, false
	}
	if c.order != nil {
		c.order.Add(fp)
	}
	return e, true
}

// Set stores or replaces the cached entry for fp.
func (c *ResponseCache) Set(fp fingerprint.Fingerprint, e rpctypes.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fp] = e
	if c.order != nil {
		evicted := c.order.Add(fp)
		if evicted != fp {
			delete(c.entries, evicted)
		}
	}
}

// InvalidateBlockBound drops every entry whose validity is tied to the
// block height (WhenBlockHeightChanges), called when the engine observes a
// new block height (spec §3: "expires when block height changes").
func (c *ResponseCache) InvalidateBlockBound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fp, e := range c.entries {
		if e.WhenBlockHeightChanges {
			delete(c.entries, fp)
		}
	}
}

// entryExpired reports whether e is no longer valid for reuse (spec §3, I7):
// either its absolute TTL has passed, or it is block-height-bound and the
// engine currently has no valid height, or that height has moved on from
// the entry's inception height.
func entryExpired(e rpctypes.CacheEntry, now time.Time, currentHeight string, haveHeight bool) bool {
	if e.ExpiresAt != nil && !now.Before(*e.ExpiresAt) {
		return true
	}
	if e.WhenBlockHeightChanges {
		if !haveHeight || e.InceptionBlockHeight != currentHeight {
			return true
		}
	}
	return false
}
