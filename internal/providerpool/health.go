package providerpool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/directdev/directclient/internal/rpctypes"
)

// NodeHealth is one provider node's result from a direct (non-aggregator,
// non-cached) eth_blockNumber probe: its raw block height, how long the
// round trip took, and any error encountered.
type NodeHealth struct {
	ProviderID  string
	URL         string
	BlockHeight string
	Latency     time.Duration
	Err         error
}

// ProbeAll queries eth_blockNumber directly against every configured node
// concurrently, bypassing both the aggregator and any cache, and returns
// one result per node in configured order. A slow or failing node never
// blocks or drops the others (spec's direct-fallback guarantee, applied
// here to health reporting rather than request dispatch).
func (p *Pool) ProbeAll(ctx context.Context, client *http.Client) []NodeHealth {
	p.mu.Lock()
	nodes := append([]rpctypes.ProviderNode(nil), p.nodes...)
	p.mu.Unlock()

	results := make([]NodeHealth, len(nodes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, n := range nodes {
		i, n := i, n
		g.Go(func() error {
			req := rpctypes.Request{ID: 1, JSONRPC: "2.0", Method: "eth_blockNumber", Params: []byte("[]")}

			start := time.Now()
			resp, err := Execute(gctx, client, n, req)
			latency := time.Since(start)

			h := NodeHealth{ProviderID: n.ProviderID, URL: n.URL, Latency: latency}
			switch {
			case err != nil:
				h.Err = err
			case resp.Error != nil:
				h.Err = fmt.Errorf("%d: %s", resp.Error.Code, resp.Error.Message)
			default:
				var height string
				if jsonErr := json.Unmarshal(resp.Result, &height); jsonErr == nil {
					h.BlockHeight = height
				} else {
					h.BlockHeight = string(resp.Result)
				}
			}

			mu.Lock()
			results[i] = h
			mu.Unlock()
			return nil // never fail-fast; a down provider shouldn't hide the rest
		})
	}
	_ = g.Wait()
	return results
}
