package engine

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/directdev/directclient/internal/batch"
	"github.com/directdev/directclient/internal/cache"
	"github.com/directdev/directclient/internal/fingerprint"
	"github.com/directdev/directclient/internal/providerpool"
	"github.com/directdev/directclient/internal/rpctypes"
)

// enqueue adds req to the current batch, starting the window timer (or
// dispatching immediately if the configured window is non-positive) the
// first time anything is added after the previous batch was taken.
func (e *Engine) enqueue(req rpctypes.Request, fp fingerprint.Fingerprint) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentBatch == nil {
		e.currentBatch = batch.New(e.sessionID, e.cfg.AggregatorEndpoint(), e.cfg.PreferJSON)
	}
	if e.currentBatch.Push(req) == 0 {
		// Dispatch already sealed that batch; this request opens the next one.
		e.currentBatch = batch.New(e.sessionID, e.cfg.AggregatorEndpoint(), e.cfg.PreferJSON)
		e.pendingFP = nil
		e.currentBatch.Push(req)
	}
	e.pendingFP = append(e.pendingFP, fp)

	if e.batchTimer != nil {
		return
	}
	window := e.cfg.Defaults.BatchWindow
	if window <= 0 {
		go e.flush()
		return
	}
	e.batchTimer = time.AfterFunc(window, e.flush)
}

// flush takes ownership of the current batch and dispatches it, outside the
// engine's lock so a slow aggregator round trip never blocks new Fetch
// calls from enqueueing into the next window.
func (e *Engine) flush() {
	e.mu.Lock()
	b, fps := e.currentBatch, e.pendingFP
	e.currentBatch, e.pendingFP = nil, nil
	e.batchTimer = nil
	e.mu.Unlock()

	if b == nil || b.Size() == 0 {
		return
	}
	e.dispatchBatch(context.Background(), b, fps)
}

// dispatchBatch sends b to the aggregator unless its back-off is still in
// effect, in which case (or on aggregator failure) it falls straight through
// to the provider pool (spec §4.6.4).
func (e *Engine) dispatchBatch(ctx context.Context, b *batch.Batch, fps []fingerprint.Fingerprint) {
	now := time.Now()
	if !e.aggBackoff.Eligible(now) {
		e.logger.Warnf("directclient: aggregator backed off, falling back to providers for %d requests", b.Size())
		e.failBatchToProviders(ctx, b, fps, noResponseError())
		return
	}

	// Gate new enqueues on this dispatch's head. openGate is idempotent
	// and guaranteed to run on every exit path, including failures, so a
	// concurrent Fetch is never blocked forever (spec §4.6.5).
	gate := make(chan struct{})
	e.mu.Lock()
	e.headGate = gate
	e.mu.Unlock()
	var once sync.Once
	openGate := func() {
		once.Do(func() {
			close(gate)
			e.mu.Lock()
			if e.headGate == gate {
				e.headGate = nil
			}
			e.mu.Unlock()
		})
	}
	defer openGate()

	tail := e.telemetryBuf.Drain()
	result := batch.Dispatch(ctx, e.client, b, tail)
	if result.Err != nil {
		e.aggBackoff.RecordFailure(now)
		e.telemetryBuf.Restore(tail)
		e.logger.Warnf("directclient: aggregator dispatch failed: %v", result.Err)
		openGate() // predictions never arrive on the provider path
		e.failBatchToProviders(ctx, b, fps, result.Err)
		return
	}
	e.aggBackoff.RecordSuccess()
	e.processStream(result.Stream, fps, openGate)
}

// processStream drains the aggregator's reply, caching and resolving each
// response as it arrives rather than waiting for the tail, so a caller whose
// response shows up early doesn't wait on the rest of the batch.
//
// submitted holds one fingerprint per originally-pushed request, indexed by
// batch-local id minus one (spec §3). As predicted fingerprints arrive in
// the head segment, they are appended to a local copy of this list so a
// later item segment whose id exceeds len(submitted) still resolves to the
// right fingerprint (spec §4.6.5).
func (e *Engine) processStream(stream *batch.Stream, submitted []fingerprint.Fingerprint, headAbsorbed func()) {
	defer stream.Close()
	defer headAbsorbed()
	fps := append([]fingerprint.Fingerprint(nil), submitted...)
	answered := make(map[fingerprint.Fingerprint]bool, len(submitted))

	for seg := range stream.Segments {
		switch {
		case seg.Err != nil:
			e.logger.Warnf("directclient: stream error: %v", seg.Err)
		case seg.Head != nil:
			e.applyHead(*seg.Head, &fps)
			headAbsorbed()
		case seg.Response != nil:
			idx, ok := localIndex(seg.Response.ID)
			if !ok || idx < 0 || idx >= len(fps) {
				e.logger.Warnf("directclient: response id %v does not map to a pending fingerprint", seg.Response.ID)
				continue
			}
			fp := fps[idx]
			e.cacheAndResolve(fp, *seg.Response, idx >= len(submitted))
			answered[fp] = true
		case seg.Tail != nil:
			// the aggregator's tail (if it sends one back at all) carries no
			// information the client needs to act on.
		}
	}

	for _, fp := range fps {
		if !answered[fp] {
			e.inflight.Resolve(fp, cache.Result{Response: noResponseResponse()})
		}
	}
}

// localIndex converts a decoded response id back to a 0-based index into
// the per-batch fingerprint list: ids on the wire are 1-based (spec §3).
func localIndex(id any) (int, bool) {
	switch v := id.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n) - 1, true
	case float64:
		return int(v) - 1, true
	case int:
		return v - 1, true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n - 1, true
	default:
		return 0, false
	}
}

// applyHead absorbs the aggregator's head segment: it updates the current
// block height (spec §3 BlockHeight) and, for every fingerprint the
// aggregator announces it is about to push a predicted response for,
// installs a fresh prefetched in-flight entry and reserves its slot in fps
// so the corresponding item segment (whose id lands beyond the originally
// submitted count) resolves to the right fingerprint (spec §4.6.5).
func (e *Engine) applyHead(head rpctypes.DirectHead, fps *[]fingerprint.Fingerprint) {
	if head.BlockHeight == "" || head.BlockHeightExpiresAt == nil {
		// spec §4.6.5: "clear if either is absent" — an incomplete height
		// announcement is never trusted over whatever was cached before.
		e.blockHeight.Clear()
	} else if normalized, err := normalizeHeight(head.BlockHeight); err != nil {
		e.logger.Warnf("directclient: malformed block height %q: %v", head.BlockHeight, err)
	} else if e.blockHeight.Set(normalized, *head.BlockHeightExpiresAt) {
		e.responseCache.InvalidateBlockBound()
	}

	for _, raw := range head.Predictions {
		fp := fingerprint.Fingerprint(raw)
		e.inflight.InstallPredicted(fp)
		// A slot is reserved regardless of whether InstallPredicted found fp
		// already pending (e.g. a real caller request for the same
		// fingerprint beat the prediction there): the aggregator still
		// assigns this prediction the next batch-local id in its own
		// response stream, so the positional mapping must stay aligned.
		*fps = append(*fps, fp)
	}
}

// cacheAndResolve resolves the in-flight entry for fp and, when the response
// is a success and a current block height is known, installs it in the
// response cache (spec §4.6.5: errors and height-less responses are handed
// to the caller but never cached).
func (e *Engine) cacheAndResolve(fp fingerprint.Fingerprint, resp rpctypes.Response, prefetched bool) {
	if height, haveHeight := e.blockHeight.Get(time.Now()); resp.IsSuccess() && haveHeight {
		e.responseCache.Set(fp, rpctypes.CacheEntry{
			Value:                  resp,
			WhenBlockHeightChanges: resp.ExpiresWhenBlockHeightChanges,
			ExpiresAt:              resp.ExpiresAt,
			InceptionBlockHeight:   height,
			Prefetched:             prefetched,
		})
	}
	e.inflight.Resolve(fp, cache.Result{Response: resp})
}

// fetchDirect dispatches req straight to a provider node, bypassing the
// aggregator entirely: either the method isn't eligible for batching, or the
// caller has chosen to skip the accelerator path.
func (e *Engine) fetchDirect(ctx context.Context, req rpctypes.Request) (rpctypes.Response, error) {
	node, err := e.providers.Pick(time.Now(), "")
	if err != nil {
		return rpctypes.Response{}, &TransportError{Peer: "providerpool", Err: err}
	}
	resp, err := providerpool.ExecuteWithFailover(ctx, e.client, e.providers, node, req, time.Now)
	if err != nil {
		return rpctypes.Response{}, &TransportError{Peer: node.URL, Err: err}
	}
	return remapped(resp, req.ID), nil
}

// failBatchToProviders dispatches the whole request list as one JSON-RPC
// batch POST against a provider node (with one level of failover), used when
// the aggregator itself is unreachable or backed off (spec §4.6.4, §4.6.7).
// fps is indexed in the same push order as b.Requests(), since both are
// always extended together under the engine's lock in enqueue; requests are
// sent with their batch-local 1-based ids so responses map back to
// fingerprints positionally regardless of the order the node answers in.
func (e *Engine) failBatchToProviders(ctx context.Context, b *batch.Batch, fps []fingerprint.Fingerprint, cause error) {
	e.logger.Warnf("directclient: routing %d requests directly to providers: %v", b.Size(), cause)
	reqs := b.Requests()
	if len(reqs) > len(fps) {
		reqs = reqs[:len(fps)]
	}
	chunk := make([]rpctypes.Request, len(reqs))
	for i, r := range reqs {
		r.ID = i + 1
		chunk[i] = r
	}

	resps, err := providerpool.ExecuteChunkWithFailover(ctx, e.client, e.providers, chunk, "", time.Now)
	if err != nil {
		failure := &TransportError{Peer: "providerpool", Err: err}
		for _, fp := range fps {
			e.inflight.Resolve(fp, cache.Result{Err: failure})
		}
		return
	}

	answered := make(map[fingerprint.Fingerprint]bool, len(resps))
	for _, resp := range resps {
		idx, ok := localIndex(resp.ID)
		if !ok || idx < 0 || idx >= len(fps) {
			e.logger.Warnf("directclient: provider response id %v does not map to a pending fingerprint", resp.ID)
			continue
		}
		e.cacheAndResolve(fps[idx], resp, false)
		answered[fps[idx]] = true
	}
	for _, fp := range fps {
		if !answered[fp] {
			e.inflight.Resolve(fp, cache.Result{Response: noResponseResponse()})
		}
	}
}
