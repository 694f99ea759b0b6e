package providerpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/directdev/directclient/internal/rpctypes"
)

// wireRequest/wireResponse are this package's own plain-JSON-RPC envelope,
// kept separate from internal/wire's structures: a direct fallback call to a
// provider node is ordinary JSON-RPC over HTTP, never the Wire binary
// protocol (that only exists between client and aggregator).
type wireRequest struct {
	ID      any             `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type wireResponse struct {
	ID      any                `json:"id"`
	JSONRPC string             `json:"jsonrpc"`
	Result  json.RawMessage    `json:"result,omitempty"`
	Error   *rpctypes.RPCError `json:"error,omitempty"`
}

// Execute sends req directly to node via ordinary JSON-RPC over HTTP,
// bypassing the aggregator entirely (spec §7: "fall back to direct provider
// nodes" when the aggregator is unreachable or backed off).
func Execute(ctx context.Context, client *http.Client, node rpctypes.ProviderNode, req rpctypes.Request) (rpctypes.Response, error) {
	id := req.ID
	if id == nil {
		id = 1
	}
	body, err := json.Marshal(wireRequest{ID: id, JSONRPC: "2.0", Method: req.Method, Params: json.RawMessage(req.Params)})
	if err != nil {
		return rpctypes.Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, node.URL, bytes.NewReader(body))
	if err != nil {
		return rpctypes.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range node.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return rpctypes.Response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return rpctypes.Response{}, err
	}
	if resp.StatusCode >= 300 {
		return rpctypes.Response{}, fmt.Errorf("providerpool: %s responded %d: %s", nodeLabel(node), resp.StatusCode, raw)
	}

	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return rpctypes.Response{}, fmt.Errorf("providerpool: malformed response from %s: %w", nodeLabel(node), err)
	}
	return rpctypes.Response{ID: wr.ID, JSONRPC: wr.JSONRPC, Result: []byte(wr.Result), Error: wr.Error}, nil
}

// ExecuteWithFailover tries node first; on failure it records the failure,
// picks one alternate node via PickExcluding, and retries once. The
// alternate is a different node whenever the pool has one; in a single-node
// pool it is the same node again.
// Two consecutive failures are returned as a joined error rather than
// retried further (spec §8: one level of failover, not an unbounded loop).
func ExecuteWithFailover(ctx context.Context, client *http.Client, pool *Pool, node rpctypes.ProviderNode, req rpctypes.Request, now func() time.Time) (rpctypes.Response, error) {
	resp, err := Execute(ctx, client, node, req)
	if err == nil {
		pool.RecordSuccess(node.URL)
		return resp, nil
	}
	pool.RecordFailure(node.URL, now())

	alt, pickErr := pool.PickExcluding(now(), node.URL)
	if pickErr != nil {
		return rpctypes.Response{}, fmt.Errorf("providerpool: %w (primary failed: %v)", pickErr, err)
	}

	resp, err2 := Execute(ctx, client, alt, req)
	if err2 == nil {
		pool.RecordSuccess(alt.URL)
		return resp, nil
	}
	pool.RecordFailure(alt.URL, now())
	return rpctypes.Response{}, fmt.Errorf("providerpool: both %s and %s failed: %v; %v", nodeLabel(node), nodeLabel(alt), err, err2)
}

// nodeLabel names a node for log/error text: the provider id when one was
// configured, else the URL.
func nodeLabel(n rpctypes.ProviderNode) string {
	if n.ProviderID != "" {
		return n.ProviderID
	}
	return n.URL
}
