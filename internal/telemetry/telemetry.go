// Package telemetry buffers the three hit classifications the client
// reports back to the aggregator on every dispatch (spec §4.8, C8): cache
// hits, predictive-prefetch hits, and in-flight de-duplication hits. The
// buffer is drained into a ClientTail at dispatch time and restored if the
// dispatch itself fails, so observations are never silently lost.
package telemetry

import (
	"sync"

	"github.com/directdev/directclient/internal/rpctypes"
)

// Buffer accumulates telemetry records between dispatches.
type Buffer struct {
	mu           sync.Mutex
	cacheHits    []rpctypes.TelemetryRecord
	prefetchHits []rpctypes.TelemetryRecord
	inflightHits []rpctypes.TelemetryRecord
}

// New returns an empty buffer.
func New() *Buffer { return &Buffer{} }

// RecordCacheHit appends a record of a response served from the local
// response cache.
func (b *Buffer) RecordCacheHit(r rpctypes.TelemetryRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cacheHits = append(b.cacheHits, r)
}

// RecordPrefetchHit appends a record of a response served from a
// predictively-prefetched entry.
func (b *Buffer) RecordPrefetchHit(r rpctypes.TelemetryRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prefetchHits = append(b.prefetchHits, r)
}

// RecordInflightHit appends a record of a response served by joining an
// already in-flight request rather than dispatching a new one.
func (b *Buffer) RecordInflightHit(r rpctypes.TelemetryRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflightHits = append(b.inflightHits, r)
}

// Drain removes and returns everything buffered so far as a ClientTail,
// ready to be sent with the next dispatch.
func (b *Buffer) Drain() rpctypes.ClientTail {
	b.mu.Lock()
	defer b.mu.Unlock()
	tail := rpctypes.ClientTail{
		CacheHits:    b.cacheHits,
		PrefetchHits: b.prefetchHits,
		InflightHits: b.inflightHits,
	}
	b.cacheHits, b.prefetchHits, b.inflightHits = nil, nil, nil
	return tail
}

// Restore puts a previously-drained tail back into the buffer, prepended
// ahead of anything recorded since the drain. Used when a dispatch carrying
// tail fails outright: the observations it would have reported are not
// dropped, they ride along with the next successful dispatch instead.
func (b *Buffer) Restore(tail rpctypes.ClientTail) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cacheHits = append(append([]rpctypes.TelemetryRecord{}, tail.CacheHits...), b.cacheHits...)
	b.prefetchHits = append(append([]rpctypes.TelemetryRecord{}, tail.PrefetchHits...), b.prefetchHits...)
	b.inflightHits = append(append([]rpctypes.TelemetryRecord{}, tail.InflightHits...), b.inflightHits...)
}

// Empty reports whether nothing is currently buffered.
func (b *Buffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cacheHits) == 0 && len(b.prefetchHits) == 0 && len(b.inflightHits) == 0
}

// Counts reports how many records of each kind are buffered right now,
// without draining them. Used by introspection/CLI surfaces (spec's "stats"
// operation) that want a point-in-time read without disturbing the next
// dispatch's tail.
func (b *Buffer) Counts() (cacheHits, prefetchHits, inflightHits int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cacheHits), len(b.prefetchHits), len(b.inflightHits)
}
