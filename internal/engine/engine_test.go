package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/directdev/directclient/internal/config"
	"github.com/directdev/directclient/internal/fingerprint"
	"github.com/directdev/directclient/internal/rpctypes"
	"github.com/directdev/directclient/internal/wire"
	"github.com/directdev/directclient/internal/wirestream"
)

func expiresIn30s() *time.Time {
	t := time.Now().Add(30 * time.Second)
	return &t
}

func newTestConfig(aggregatorURL string, providers ...config.Provider) *config.Config {
	return &config.Config{
		ProjectID:     "proj",
		NetworkID:     "1",
		AggregatorURL: aggregatorURL,
		Providers:     providers,
		Defaults:      config.Defaults{Timeout: 2 * time.Second, BatchWindow: 0},
	}
}

func TestFetchMissingJSONRPCRejected(t *testing.T) {
	cfg := newTestConfig("http://aggregator.invalid", config.Provider{ProviderID: "p1", URL: "http://unused.invalid"})
	e := New(cfg, nil)
	_, err := e.Fetch(context.Background(), rpctypes.Request{ID: "1", Method: "eth_chainId", Params: []byte("[]")})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for missing jsonrpc, got %v", err)
	}
}

func TestDevModeBypassesAggregator(t *testing.T) {
	var aggregatorHits int32
	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&aggregatorHits, 1)
	}))
	defer aggregator.Close()
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x2a"}`))
	}))
	defer provider.Close()

	cfg := newTestConfig(aggregator.URL, config.Provider{ProviderID: "p1", URL: provider.URL})
	cfg.DevMode = true
	e := New(cfg, nil)

	resp, err := e.Fetch(context.Background(), rpctypes.Request{
		ID: "1", JSONRPC: "2.0", Method: "eth_chainId", Params: []byte("[]"),
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(resp.Result) != `"0x2a"` {
		t.Fatalf("result = %s", resp.Result)
	}
	if atomic.LoadInt32(&aggregatorHits) != 0 {
		t.Fatal("dev mode must never touch the aggregator")
	}
}

// TestAggregatorFailureFallsBackAsChunk covers spec §8 S4: an aggregator
// 500 escalates its back-off and transparently re-dispatches the same
// request list as one JSON-RPC batch POST against a provider node, with no
// visible failure to either caller.
func TestAggregatorFailureFallsBackAsChunk(t *testing.T) {
	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer aggregator.Close()

	var mu sync.Mutex
	var chunkSizes []int
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batchBody []struct {
			ID any `json:"id"`
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &batchBody); err != nil {
			t.Errorf("provider expected a JSON array body, got %s", raw)
		}
		mu.Lock()
		chunkSizes = append(chunkSizes, len(batchBody))
		mu.Unlock()
		var out []string
		for _, entry := range batchBody {
			out = append(out, fmt.Sprintf(`{"jsonrpc":"2.0","id":%v,"result":"0x1"}`, entry.ID))
		}
		w.Write([]byte("[" + strings.Join(out, ",") + "]"))
	}))
	defer provider.Close()

	cfg := newTestConfig(aggregator.URL, config.Provider{ProviderID: "p1", URL: provider.URL})
	cfg.Defaults.BatchWindow = 50 * time.Millisecond
	e := New(cfg, nil)

	var g errgroup.Group
	for _, id := range []string{"a", "b"} {
		id := id
		params := fmt.Sprintf(`["%s"]`, id)
		g.Go(func() error {
			resp, err := e.Fetch(context.Background(), rpctypes.Request{
				ID: id, JSONRPC: "2.0", Method: "eth_getBalance", Params: []byte(params),
			})
			if err != nil {
				return err
			}
			if string(resp.Result) != `"0x1"` {
				return fmt.Errorf("result = %s", resp.Result)
			}
			if resp.ID != id {
				return fmt.Errorf("caller id not preserved: %v", resp.ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("fallback fetch: %v", err)
	}

	if e.aggBackoff.Eligible(time.Now()) {
		t.Fatal("aggregator back-off should be in effect after a 500")
	}
	mu.Lock()
	defer mu.Unlock()
	total := 0
	for _, n := range chunkSizes {
		total += n
	}
	if total != 2 {
		t.Fatalf("provider should have answered both requests, saw chunks %v", chunkSizes)
	}
}

func TestFetchIneligibleMethodGoesDirect(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0xok"}`))
	}))
	defer provider.Close()

	cfg := newTestConfig("http://aggregator.invalid", config.Provider{ProviderID: "p1", URL: provider.URL})
	e := New(cfg, nil)

	resp, err := e.Fetch(context.Background(), rpctypes.Request{
		ID: "1", JSONRPC: "2.0", Method: "eth_sendRawTransaction", Params: []byte(`["0xdead"]`),
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(resp.Result) != `"0xok"` {
		t.Fatalf("result = %s", resp.Result)
	}
}

func TestFetchViaAggregatorAndCacheHit(t *testing.T) {
	var hits int32
	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		rr := wirestream.NewReader(r.Body)
		for {
			_, err := rr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("server read: %v", err)
				break
			}
		}
		sw := wirestream.NewWriter(w)
		_ = sw.WriteHead(wire.EncodeHead(rpctypes.DirectHead{BlockHeight: "0x5", BlockHeightExpiresAt: expiresIn30s()}))
		_ = sw.WriteItem(wire.EncodeResponse(rpctypes.Response{ID: "1", JSONRPC: "2.0", Result: []byte(`"0x5"`)}))
	}))
	defer aggregator.Close()

	cfg := newTestConfig(aggregator.URL, config.Provider{ProviderID: "fallback", URL: "http://unused.invalid"})
	e := New(cfg, nil)

	req := rpctypes.Request{ID: "1", JSONRPC: "2.0", Method: "eth_chainId", Params: []byte("[]")}
	resp, err := e.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if string(resp.Result) != `"0x5"` {
		t.Fatalf("result = %s", resp.Result)
	}

	resp2, err := e.Fetch(context.Background(), rpctypes.Request{ID: "2", JSONRPC: "2.0", Method: "eth_chainId", Params: []byte("[]")})
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if string(resp2.Result) != `"0x5"` {
		t.Fatalf("cached result = %s", resp2.Result)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one aggregator round trip, got %d", hits)
	}
}

func TestFetchFallsBackToProviderWhenAggregatorUnreachable(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x7"}`))
	}))
	defer provider.Close()

	cfg := newTestConfig("http://127.0.0.1:1", config.Provider{ProviderID: "p1", URL: provider.URL})
	e := New(cfg, nil)

	resp, err := e.Fetch(context.Background(), rpctypes.Request{
		ID: "1", JSONRPC: "2.0", Method: "eth_gasPrice", Params: []byte("[]"),
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(resp.Result) != `"0x7"` {
		t.Fatalf("result = %s", resp.Result)
	}
}

func TestBlockNumberSynthesizedFromCachedHeight(t *testing.T) {
	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		sw := wirestream.NewWriter(w)
		_ = sw.WriteHead(wire.EncodeHead(rpctypes.DirectHead{BlockHeight: "0x9", BlockHeightExpiresAt: expiresIn30s()}))
		_ = sw.WriteItem(wire.EncodeResponse(rpctypes.Response{ID: "1", JSONRPC: "2.0", Result: []byte(`"0x9"`)}))
	}))
	defer aggregator.Close()

	cfg := newTestConfig(aggregator.URL, config.Provider{ProviderID: "fallback", URL: "http://unused.invalid"})
	e := New(cfg, nil)

	_, err := e.Fetch(context.Background(), rpctypes.Request{ID: "1", JSONRPC: "2.0", Method: "eth_chainId", Params: []byte("[]")})
	if err != nil {
		t.Fatalf("priming fetch: %v", err)
	}

	resp, err := e.Fetch(context.Background(), rpctypes.Request{ID: "2", JSONRPC: "2.0", Method: "eth_blockNumber", Params: []byte("[]")})
	if err != nil {
		t.Fatalf("block number fetch: %v", err)
	}
	if string(resp.Result) != `"0x9"` {
		t.Fatalf("synthesized result = %s", resp.Result)
	}
}

func TestDestroyFlushesPendingBatch(t *testing.T) {
	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		sw := wirestream.NewWriter(w)
		_ = sw.WriteItem(wire.EncodeResponse(rpctypes.Response{ID: "1", JSONRPC: "2.0", Result: []byte(`"0x1"`)}))
	}))
	defer aggregator.Close()

	cfg := newTestConfig(aggregator.URL, config.Provider{ProviderID: "fallback", URL: "http://unused.invalid"})
	cfg.Defaults.BatchWindow = time.Hour // never fires on its own
	e := New(cfg, nil)

	go func() {
		_, _ = e.Fetch(context.Background(), rpctypes.Request{ID: "1", JSONRPC: "2.0", Method: "eth_chainId", Params: []byte("[]")})
	}()
	time.Sleep(20 * time.Millisecond) // let the request enqueue

	if err := e.Destroy(context.Background()); err != nil {
		t.Fatalf("destroy: %v", err)
	}
}

func TestFetchAfterDestroyFails(t *testing.T) {
	cfg := newTestConfig("http://aggregator.invalid", config.Provider{ProviderID: "p1", URL: "http://unused.invalid"})
	e := New(cfg, nil)
	if err := e.Destroy(context.Background()); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	_, err := e.Fetch(context.Background(), rpctypes.Request{ID: "1", JSONRPC: "2.0", Method: "eth_chainId", Params: []byte("[]")})
	if err == nil {
		t.Fatal("expected fetch after destroy to fail")
	}
}

// TestConcurrentDuplicateRequestsShareOneDispatch covers spec §8 S2: two
// concurrent fetches for the same method and params (different caller ids)
// must reach the aggregator as a single item segment, with both callers
// receiving the one response under their own ids.
func TestConcurrentDuplicateRequestsShareOneDispatch(t *testing.T) {
	var itemCount int32
	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rr := wirestream.NewReader(r.Body)
		for {
			seg, err := rr.Next()
			if err != nil {
				break
			}
			if seg.Kind == wirestream.KindItem {
				atomic.AddInt32(&itemCount, 1)
			}
		}
		sw := wirestream.NewWriter(w)
		_ = sw.WriteHead(wire.EncodeHead(rpctypes.DirectHead{BlockHeight: "0x10", BlockHeightExpiresAt: expiresIn30s()}))
		_ = sw.WriteItem(wire.EncodeResponse(rpctypes.Response{ID: "1", JSONRPC: "2.0", Result: []byte(`"0xcc"`)}))
	}))
	defer aggregator.Close()

	cfg := newTestConfig(aggregator.URL, config.Provider{ProviderID: "fallback", URL: "http://unused.invalid"})
	cfg.Defaults.BatchWindow = 50 * time.Millisecond
	e := New(cfg, nil)

	params := []byte(`[{"to":"0xABC","data":"0x01"},"0x10"]`)
	var g errgroup.Group
	for _, id := range []string{"first", "second"} {
		id := id
		g.Go(func() error {
			resp, err := e.Fetch(context.Background(), rpctypes.Request{
				ID: id, JSONRPC: "2.0", Method: "eth_call", Params: params,
			})
			if err != nil {
				return err
			}
			if string(resp.Result) != `"0xcc"` {
				return fmt.Errorf("result = %s", resp.Result)
			}
			if resp.ID != id {
				return fmt.Errorf("caller id not preserved: %v", resp.ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent fetch: %v", err)
	}
	if n := atomic.LoadInt32(&itemCount); n != 1 {
		t.Fatalf("aggregator saw %d item segments, want 1 (inflight dedup)", n)
	}
}

// TestPredictivePrefetchAbsorption covers spec §8 S3: a predicted
// fingerprint announced in the aggregator's head, whose answer streams in
// on a batch-local id beyond the originally submitted count, must land in
// the response cache marked prefetched so a later caller for that exact
// request gets a prefetchHit instead of triggering a second round trip.
func TestPredictivePrefetchAbsorption(t *testing.T) {
	predictedReq := rpctypes.Request{JSONRPC: "2.0", Method: "eth_getBalance", Params: []byte(`["0xABC","0x10"]`)}
	predictedFP := fingerprint.Of(predictedReq, "0x10")

	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		sw := wirestream.NewWriter(w)
		head := rpctypes.DirectHead{
			Predictions:          [][32]byte{predictedFP},
			BlockHeight:          "0x10",
			BlockHeightExpiresAt: expiresIn30s(),
		}
		_ = sw.WriteHead(wire.EncodeHead(head))
		_ = sw.WriteItem(wire.EncodeResponse(rpctypes.Response{ID: "1", JSONRPC: "2.0", Result: []byte(`"0x7"`)}))
		_ = sw.WriteItem(wire.EncodeResponse(rpctypes.Response{ID: "2", JSONRPC: "2.0", Result: []byte(`"0xbee"`)}))
	}))
	defer aggregator.Close()

	cfg := newTestConfig(aggregator.URL, config.Provider{ProviderID: "fallback", URL: "http://unused.invalid"})
	e := New(cfg, nil)

	if _, err := e.Fetch(context.Background(), rpctypes.Request{ID: "1", JSONRPC: "2.0", Method: "eth_chainId", Params: []byte("[]")}); err != nil {
		t.Fatalf("priming fetch: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the predicted item resolve into the response cache

	resp, err := e.Fetch(context.Background(), rpctypes.Request{
		ID: "99", JSONRPC: "2.0", Method: "eth_getBalance", Params: []byte(`["0xABC","0x10"]`),
	})
	if err != nil {
		t.Fatalf("predicted fetch: %v", err)
	}
	if string(resp.Result) != `"0xbee"` {
		t.Fatalf("result = %s", resp.Result)
	}
	if resp.ID != "99" {
		t.Fatalf("caller id not preserved: %v", resp.ID)
	}

	_, prefetchHits, _ := e.telemetryBuf.Counts()
	if prefetchHits != 1 {
		t.Fatalf("expected exactly one prefetch hit, got %d", prefetchHits)
	}
}
