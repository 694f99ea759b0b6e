package cache

import (
	"sync"

	"github.com/directdev/directclient/internal/fingerprint"
	"github.com/directdev/directclient/internal/rpctypes"
)

// Result is what an in-flight request eventually resolves to: a response or
// a terminal error (e.g. the aggregator and every provider failed).
type Result struct {
	Response rpctypes.Response
	Err      error
}

// entry tracks the waiters pending on one fingerprint, plus whether it was
// installed by a prediction (spec §3 InflightEntry.prefetched) rather than
// by an actual caller request.
type entry struct {
	waiters    []chan Result
	prefetched bool
}

// InflightCache de-duplicates concurrent requests sharing a fingerprint: the
// first caller becomes the "leader" responsible for actually dispatching the
// request; every subsequent caller for the same fingerprint while it is
// still pending joins as a follower and receives the leader's result once it
// resolves, without triggering a second dispatch (spec §4.7). It also holds
// entries installed ahead of any caller request by a predictive-prefetch
// head (spec §4.6.5), so a later caller for the same fingerprint joins as a
// follower instead of triggering a redundant dispatch.
type InflightCache struct {
	mu      sync.Mutex
	entries map[fingerprint.Fingerprint]*entry
}

// NewInflightCache returns an empty cache.
func NewInflightCache() *InflightCache {
	return &InflightCache{entries: make(map[fingerprint.Fingerprint]*entry)}
}

// Join registers the caller's interest in fp. isLeader is true exactly once
// per fingerprint until Resolve is called; the leader must eventually call
// Resolve so followers aren't left waiting forever. prefetched reports
// whether fp was already pending because of a predictive-prefetch
// installation rather than a real caller request — the engine uses this to
// classify the hit as a prefetchHit instead of a plain inflightHit.
func (c *InflightCache) Join(fp fingerprint.Fingerprint) (ch chan Result, isLeader bool, prefetched bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch = make(chan Result, 1)
	e, pending := c.entries[fp]
	if !pending {
		e = &entry{}
		c.entries[fp] = e
	}
	e.waiters = append(e.waiters, ch)
	return ch, !pending, e.prefetched
}

// InstallPredicted registers fp as pending with no waiters yet, installed
// ahead of time because the aggregator's head announced it as a prediction
// (spec §4.6.5). Returns false if fp was already pending (a real caller
// request beat the prediction there), in which case no installation is
// needed. Resolve still must be called exactly once for fp.
func (c *InflightCache) InstallPredicted(fp fingerprint.Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, pending := c.entries[fp]; pending {
		return false
	}
	c.entries[fp] = &entry{prefetched: true}
	return true
}

// Resolve fans the result out to every waiter registered for fp (leader
// included, if it also called Join) and clears the entry. Safe to call even
// if fp was installed via InstallPredicted and never joined by anyone.
func (c *InflightCache) Resolve(fp fingerprint.Fingerprint, result Result) {
	c.mu.Lock()
	e, ok := c.entries[fp]
	delete(c.entries, fp)
	c.mu.Unlock()
	if !ok {
		return
	}
	for _, w := range e.waiters {
		w <- result
		close(w)
	}
}

// Pending reports whether fp currently has an in-flight entry (leader or
// predicted).
func (c *InflightCache) Pending(fp fingerprint.Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[fp]
	return ok
}
