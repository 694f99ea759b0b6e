package cache

import (
	"sync"
	"time"

	"github.com/directdev/directclient/internal/rpctypes"
)

// BlockHeightCache holds the engine's single current view of the chain tip.
// There is exactly one of these per engine, not one per provider: it
// represents what the client believes "latest" resolves to right now
// (spec §3 BlockHeight).
type BlockHeightCache struct {
	mu    sync.Mutex
	value *rpctypes.BlockHeight
}

// NewBlockHeightCache returns an empty cache.
func NewBlockHeightCache() *BlockHeightCache { return &BlockHeightCache{} }

// Get returns the current height if set and not yet expired.
func (c *BlockHeightCache) Get(now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil || !c.value.Valid(now) {
		return "", false
	}
	return c.value.Value, true
}

// Snapshot returns the full current height record (value and expiry) if set
// and not yet expired; Get is the common path when only the value matters.
func (c *BlockHeightCache) Snapshot(now time.Time) (rpctypes.BlockHeight, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil || !c.value.Valid(now) {
		return rpctypes.BlockHeight{}, false
	}
	return *c.value, true
}

// Set records a newly observed block height. Callers compare the returned
// changed flag against the previous value to decide whether to invalidate
// block-height-bound cache entries (spec §3: cache entries "expire when
// block height changes").
func (c *BlockHeightCache) Set(value string, expiresAt time.Time) (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed = c.value == nil || c.value.Value != value
	c.value = &rpctypes.BlockHeight{Value: value, ExpiresAt: expiresAt}
	return changed
}

// Clear drops the current height entirely, used when a head segment omits
// either the height or its expiry (spec §4.6.5: "clear if either is
// absent") so a stale or unbounded height is never trusted.
func (c *BlockHeightCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
}
