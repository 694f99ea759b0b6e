package engine

import (
	"time"

	"github.com/directdev/directclient/internal/providerpool"
)

// Stats is a point-in-time snapshot of engine state for introspection
// surfaces (the CLI's `stats` command); it never mutates anything the
// dispatch path depends on.
type Stats struct {
	SessionID          string
	BlockHeight        string // empty means no current, non-expired height is known
	AggregatorEligible bool
	PendingBatchSize   int
	CacheHits          int
	PrefetchHits       int
	InflightHits       int
	Providers          []providerpool.NodeStatus
}

// Stats returns a snapshot of the engine's current caches, back-off state,
// and buffered telemetry.
func (e *Engine) Stats() Stats {
	now := time.Now()

	e.mu.Lock()
	pendingSize := 0
	if e.currentBatch != nil {
		pendingSize = e.currentBatch.Size()
	}
	e.mu.Unlock()

	height, _ := e.blockHeight.Get(now)
	cacheHits, prefetchHits, inflightHits := e.telemetryBuf.Counts()

	return Stats{
		SessionID:          e.sessionID,
		BlockHeight:        height,
		AggregatorEligible: e.aggBackoff.Eligible(now),
		PendingBatchSize:   pendingSize,
		CacheHits:          cacheHits,
		PrefetchHits:       prefetchHits,
		InflightHits:       inflightHits,
		Providers:          e.providers.Snapshot(now),
	}
}
