// Package engine implements the orchestrator (C6): the batch/cache engine
// that every public Fetch call goes through. It decides, per request,
// whether to answer from cache, join an in-flight dispatch, enqueue into the
// current batch window, or skip the aggregator entirely for methods outside
// the whitelist.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/directdev/directclient/internal/batch"
	"github.com/directdev/directclient/internal/cache"
	"github.com/directdev/directclient/internal/config"
	"github.com/directdev/directclient/internal/fingerprint"
	"github.com/directdev/directclient/internal/providerpool"
	"github.com/directdev/directclient/internal/rpctypes"
	"github.com/directdev/directclient/internal/telemetry"
)

// Engine is the client's single stateful orchestrator. Every method that
// touches shared state (caches, the in-progress batch, back-off trackers)
// takes mu, so the engine behaves as if single-owner even though Go's
// runtime is preemptive (spec's concurrency model requirement).
type Engine struct {
	cfg    *config.Config
	logger Logger
	client *http.Client

	responseCache *cache.ResponseCache
	blockHeight   *cache.BlockHeightCache
	inflight      *cache.InflightCache
	telemetryBuf  *telemetry.Buffer
	providers     *providerpool.Pool
	aggBackoff    *providerpool.AggregatorBackoff

	sessionID string

	mu           sync.Mutex
	currentBatch *batch.Batch
	// pendingFP mirrors the current batch's requests in push order: index i
	// (0-based) is the fingerprint of the request with batch-local id i+1
	// (spec §3). dispatchBatch hands this to processStream, which extends a
	// copy of it as predicted fingerprints arrive in the aggregator's head.
	pendingFP  []fingerprint.Fingerprint
	batchTimer *time.Timer
	// headGate is non-nil while an aggregator dispatch is in flight and its
	// head has not yet been absorbed. Fetch waits on it before classifying a
	// request against the inflight map, so predicted fingerprints from batch
	// N are always installed before any request in batch N+1 is classified.
	// It is closed when the head arrives, and unconditionally when the
	// dispatch ends on any path, so an enqueue is never blocked forever.
	headGate  chan struct{}
	destroyed bool
}

// New builds an engine from cfg. cfg.Validate() should be called by the
// caller first; New does not re-validate.
func New(cfg *config.Config, logger Logger) *Engine {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Engine{
		cfg:           cfg,
		logger:        logger,
		client:        &http.Client{Timeout: effectiveTimeout(cfg)},
		responseCache: cache.NewResponseCache(cfg.Defaults.ResponseCache),
		blockHeight:   cache.NewBlockHeightCache(),
		inflight:      cache.NewInflightCache(),
		telemetryBuf:  telemetry.New(),
		providers:     providerpool.New(cfg.ProviderNodes()),
		aggBackoff:    providerpool.NewAggregatorBackoff(),
		sessionID:     newSessionID(),
	}
}

func effectiveTimeout(cfg *config.Config) time.Duration {
	if cfg.Defaults.Timeout > 0 {
		return cfg.Defaults.Timeout
	}
	return 10 * time.Second
}

func newSessionID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Fetch resolves a single JSON-RPC request, preferring the local cache, an
// already in-flight duplicate, or a batched aggregator round trip, falling
// back to a direct provider node when the method is outside the whitelist
// or the aggregator is unavailable.
func (e *Engine) Fetch(ctx context.Context, req rpctypes.Request) (rpctypes.Response, error) {
	if req.Method == "" {
		return rpctypes.Response{}, &ValidationError{Reason: "method is required"}
	}
	if req.JSONRPC == "" {
		return rpctypes.Response{}, &ValidationError{Reason: "jsonrpc field is required"}
	}

	e.mu.Lock()
	destroyed := e.destroyed
	e.mu.Unlock()
	if destroyed {
		return rpctypes.Response{}, &ValidationError{Reason: "engine has been destroyed"}
	}

	if e.cfg.DevMode || !fingerprint.Eligible(req.JSONRPC, req.Method) {
		return e.fetchDirect(ctx, req)
	}

	now := time.Now()
	height, haveHeight := e.blockHeight.Get(now)

	if req.Method == "eth_blockNumber" && haveHeight {
		resp := e.synthesizeBlockNumber(req, now)
		e.telemetryBuf.RecordCacheHit(rpctypes.TelemetryRecord{Request: req, ObservedAt: now, BlockHeight: height})
		return resp, nil
	}

	fp := fingerprint.Of(req, height)

	if entry, ok := e.responseCache.Get(fp, now, height, haveHeight); ok {
		record := rpctypes.TelemetryRecord{Request: req, ObservedAt: now, BlockHeight: height}
		if entry.Prefetched {
			e.telemetryBuf.RecordPrefetchHit(record)
		} else {
			e.telemetryBuf.RecordCacheHit(record)
		}
		return remapped(entry.Value, req.ID), nil
	}

	// An in-flight dispatch may be about to announce predicted fingerprints
	// in its head; wait for it before deciding this request is unique.
	if err := e.awaitHead(ctx); err != nil {
		return rpctypes.Response{}, err
	}

	ch, leader, prefetched := e.inflight.Join(fp)
	if !leader {
		record := rpctypes.TelemetryRecord{Request: req, ObservedAt: now, BlockHeight: height}
		if prefetched {
			e.telemetryBuf.RecordPrefetchHit(record)
		} else {
			e.telemetryBuf.RecordInflightHit(record)
		}
		return e.awaitResult(ctx, ch, req.ID)
	}

	e.enqueue(req, fp)
	return e.awaitResult(ctx, ch, req.ID)
}

// awaitHead blocks until the in-flight aggregator dispatch (if any) has
// absorbed its head segment, so predictions are installed before the caller
// classifies its request against the inflight map (spec §4.6.2 step 2).
func (e *Engine) awaitHead(ctx context.Context) error {
	e.mu.Lock()
	gate := e.headGate
	e.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) awaitResult(ctx context.Context, ch chan cache.Result, callerID any) (rpctypes.Response, error) {
	select {
	case res := <-ch:
		return remapped(res.Response, callerID), res.Err
	case <-ctx.Done():
		return rpctypes.Response{}, ctx.Err()
	}
}

// remapped post-processes a response for return to the caller: the
// batch-local (or cached) id is replaced with the caller's own, and the
// jsonrpc version marker is always present (spec §4.6.2: "all return values
// are post-processed to carry jsonrpc 2.0 and the caller's original id").
func remapped(resp rpctypes.Response, callerID any) rpctypes.Response {
	resp.ID = callerID
	resp.JSONRPC = "2.0"
	return resp
}

// FetchBatch resolves every request in reqs concurrently, preserving the
// input order in the returned slice; a per-request error does not prevent
// the others from completing (spec: one failed call must not fail the
// whole batch).
func (e *Engine) FetchBatch(ctx context.Context, reqs []rpctypes.Request) ([]rpctypes.Response, []error) {
	resps := make([]rpctypes.Response, len(reqs))
	errs := make([]error, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range reqs {
		i, r := i, r
		g.Go(func() error {
			resp, err := e.Fetch(gctx, r)
			resps[i], errs[i] = resp, err
			return nil // collect per-request errors, never fail the group
		})
	}
	_ = g.Wait()
	return resps, errs
}

// Destroy marks the engine unusable, then flushes any pending batch
// synchronously and best-effort beacons remaining telemetry (the beacon is
// sent only when BeaconURL is set).
func (e *Engine) Destroy(ctx context.Context) error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.destroyed = true
	if e.batchTimer != nil {
		e.batchTimer.Stop()
	}
	b, fps := e.currentBatch, e.pendingFP
	e.currentBatch, e.pendingFP = nil, nil
	e.mu.Unlock()

	if b != nil && b.Size() > 0 {
		e.dispatchBatch(ctx, b, fps)
	}
	telemetry.FlushBeacon(e.cfg.BeaconURL, e.telemetryBuf)
	return nil
}
