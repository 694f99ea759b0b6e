package providerpool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/directdev/directclient/internal/rpctypes"
)

func TestPickWeightedDistribution(t *testing.T) {
	nodes := []rpctypes.ProviderNode{
		{ProviderID: "a", URL: "http://a.invalid", Weighting: 9},
		{ProviderID: "b", URL: "http://b.invalid", Weighting: 1},
	}
	pool := New(nodes)
	now := time.Now()
	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		n, err := pool.Pick(now, "")
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		counts[n.ProviderID]++
	}
	if counts["a"] < counts["b"] {
		t.Fatalf("expected heavier-weighted node to win more often: %+v", counts)
	}
}

func TestPickExcludesBackedOffNodes(t *testing.T) {
	nodes := []rpctypes.ProviderNode{
		{ProviderID: "a", URL: "http://a.invalid", Weighting: 1},
		{ProviderID: "b", URL: "http://b.invalid", Weighting: 1},
	}
	pool := New(nodes)
	now := time.Now()
	pool.RecordFailure("http://a.invalid", now)

	for i := 0; i < 20; i++ {
		n, err := pool.Pick(now, "")
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if n.ProviderID != "b" {
			t.Fatalf("expected only node b while a is backed off, got %s", n.ProviderID)
		}
	}
}

// Back-off is keyed per node URL, not per provider id: nodes configured
// without a provider_id (which config.Validate permits) must fail
// independently, and failover exclusion must still land on a different node.
func TestBackoffIndependentWithoutProviderIDs(t *testing.T) {
	nodes := []rpctypes.ProviderNode{
		{URL: "http://a.invalid", Weighting: 1},
		{URL: "http://b.invalid", Weighting: 1},
	}
	pool := New(nodes)
	now := time.Now()
	pool.RecordFailure("http://a.invalid", now)

	for i := 0; i < 20; i++ {
		n, err := pool.Pick(now, "")
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if n.URL != "http://b.invalid" {
			t.Fatalf("one id-less node's failure backed off the other: picked %s", n.URL)
		}
	}

	n, err := pool.PickExcluding(now, "http://b.invalid")
	if err != nil {
		t.Fatalf("pick excluding: %v", err)
	}
	if n.URL != "http://a.invalid" {
		t.Fatalf("failover exclusion by URL should reach the other node, got %s", n.URL)
	}
}

func TestBackoffEligibleAtExactExpiry(t *testing.T) {
	tr := newBackoffTracker()
	now := time.Now()
	endsAt := tr.RecordFailure("x", now)
	if tr.Eligible("x", endsAt.Add(-time.Millisecond)) {
		t.Fatal("should not be eligible before back-off ends")
	}
	if !tr.Eligible("x", endsAt) {
		t.Fatal("should be eligible at the exact expiry instant")
	}
}

func TestBackoffFirstFailureIsExactlyBaseDelay(t *testing.T) {
	tr := newBackoffTracker()
	now := time.Now()
	endsAt := tr.RecordFailure("x", now)
	want := time.Duration(baseBackoffMillis) * time.Millisecond
	if got := endsAt.Sub(now); got != want {
		t.Fatalf("first failure should back off by exactly %v (spec S4), got %v", want, got)
	}
}

func TestBackoffExponentCap(t *testing.T) {
	tr := newBackoffTracker()
	now := time.Now()
	var last time.Time
	for i := 0; i < 12; i++ {
		last = tr.RecordFailure("x", now)
	}
	maxDelay := time.Duration(baseBackoffMillis) * time.Millisecond * (1 << maxBackoffExponent)
	if last.Sub(now) != maxDelay {
		t.Fatalf("expected back-off to cap at %v, got %v", maxDelay, last.Sub(now))
	}
}

func TestNoEligibleProvider(t *testing.T) {
	nodes := []rpctypes.ProviderNode{{ProviderID: "a", URL: "http://a.invalid"}}
	pool := New(nodes)
	now := time.Now()
	pool.RecordFailure("http://a.invalid", now)
	if _, err := pool.Pick(now, ""); err == nil {
		t.Fatal("expected no eligible provider error")
	}
}

func TestExecuteDirectJSONRPC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
	}))
	defer srv.Close()

	node := rpctypes.ProviderNode{ProviderID: "a", URL: srv.URL}
	resp, err := Execute(context.Background(), srv.Client(), node, rpctypes.Request{
		JSONRPC: "2.0", Method: "eth_blockNumber", Params: []byte("[]"),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(resp.Result) != `"0x10"` {
		t.Fatalf("result = %s", resp.Result)
	}
}

func TestExecuteChunkParsesArrayAndSingleObject(t *testing.T) {
	array := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x1"},{"jsonrpc":"2.0","id":2,"error":{"code":-32000,"message":"nope"}}]`))
	}))
	defer array.Close()

	reqs := []rpctypes.Request{
		{ID: 1, JSONRPC: "2.0", Method: "eth_chainId", Params: []byte("[]")},
		{ID: 2, JSONRPC: "2.0", Method: "eth_gasPrice", Params: []byte("[]")},
	}
	resps, err := ExecuteChunk(context.Background(), http.DefaultClient, rpctypes.ProviderNode{ProviderID: "a", URL: array.URL}, reqs)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(resps) != 2 || string(resps[0].Result) != `"0x1"` || resps[1].Error == nil {
		t.Fatalf("unexpected chunk responses: %+v", resps)
	}

	single := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer single.Close()

	resps, err = ExecuteChunk(context.Background(), http.DefaultClient, rpctypes.ProviderNode{ProviderID: "b", URL: single.URL}, reqs[:1])
	if err != nil {
		t.Fatalf("single-object chunk: %v", err)
	}
	if len(resps) != 1 {
		t.Fatalf("unexpected single responses: %+v", resps)
	}
}

func TestExecuteChunkRejectsInvalidEntryShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"jsonrpc":"2.0","id":1}]`)) // neither result nor error
	}))
	defer srv.Close()

	_, err := ExecuteChunk(context.Background(), http.DefaultClient, rpctypes.ProviderNode{ProviderID: "a", URL: srv.URL},
		[]rpctypes.Request{{ID: 1, JSONRPC: "2.0", Method: "eth_chainId", Params: []byte("[]")}})
	if err == nil {
		t.Fatal("expected shape-validation error")
	}
}

// TestExecuteChunkWithFailoverBacksOffFailedNode covers spec §8 S5: a node
// returning garbage gets its back-off escalated and the chunk retries once
// on a different node.
func TestExecuteChunkWithFailoverBacksOffFailedNode(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x5"}]`))
	}))
	defer good.Close()

	// The bad node's weight dwarfs the good node's, so the first pick lands
	// on it; the answer must still come from the good node via failover.
	pool := New([]rpctypes.ProviderNode{
		{ProviderID: "bad", URL: bad.URL, Weighting: 1e9},
		{ProviderID: "good", URL: good.URL, Weighting: 0.001},
	})
	reqs := []rpctypes.Request{{ID: 1, JSONRPC: "2.0", Method: "eth_chainId", Params: []byte("[]")}}

	for i := 0; i < 3; i++ {
		resps, err := ExecuteChunkWithFailover(context.Background(), http.DefaultClient, pool, reqs, "", time.Now)
		if err != nil {
			t.Fatalf("failover chunk: %v", err)
		}
		if len(resps) != 1 || string(resps[0].Result) != `"0x5"` {
			t.Fatalf("unexpected responses: %+v", resps)
		}
	}
	if pool.backoff.Eligible(bad.URL, time.Now()) {
		t.Fatal("bad node should be backing off after failing a chunk")
	}
}

func TestExecuteWithFailoverRetriesOnce(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x20"}`))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	nodes := []rpctypes.ProviderNode{
		{ProviderID: "bad", URL: bad.URL},
		{ProviderID: "good", URL: good.URL},
	}
	pool := New(nodes)
	resp, err := ExecuteWithFailover(context.Background(), http.DefaultClient, pool, nodes[0],
		rpctypes.Request{JSONRPC: "2.0", Method: "eth_blockNumber", Params: []byte("[]")}, time.Now)
	if err != nil {
		t.Fatalf("expected failover success, got %v", err)
	}
	if string(resp.Result) != `"0x20"` {
		t.Fatalf("result = %s", resp.Result)
	}
}
