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

// ExecuteChunk sends reqs to node as one JSON-RPC batch POST (a JSON array
// body; providers answer with an array, or a single object when they treat
// a one-element batch as a plain call). Every entry in the reply must look
// like a JSON-RPC response — an id plus a result or an error — or the whole
// chunk is treated as a transport failure, since a half-garbled body can't
// be trusted to have answered anything correctly.
func ExecuteChunk(ctx context.Context, client *http.Client, node rpctypes.ProviderNode, reqs []rpctypes.Request) ([]rpctypes.Response, error) {
	body := make([]wireRequest, len(reqs))
	for i, r := range reqs {
		id := r.ID
		if id == nil {
			id = i + 1
		}
		body[i] = wireRequest{ID: id, JSONRPC: "2.0", Method: r.Method, Params: json.RawMessage(r.Params)}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, node.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range node.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("providerpool: %s responded %d: %s", nodeLabel(node), resp.StatusCode, raw)
	}
	return parseChunkResponse(nodeLabel(node), raw)
}

func parseChunkResponse(label string, raw []byte) ([]rpctypes.Response, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	var entries []wireResponse
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single wireResponse
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("providerpool: malformed response from %s: %w", label, err)
		}
		entries = []wireResponse{single}
	} else if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("providerpool: malformed response from %s: %w", label, err)
	}

	out := make([]rpctypes.Response, len(entries))
	for i, wr := range entries {
		if wr.ID == nil || (wr.Result == nil && wr.Error == nil) {
			return nil, fmt.Errorf("providerpool: entry %d from %s is not a JSON-RPC response", i, label)
		}
		out[i] = rpctypes.Response{ID: wr.ID, JSONRPC: wr.JSONRPC, Result: []byte(wr.Result), Error: wr.Error}
	}
	return out, nil
}

// ExecuteChunkWithFailover picks a node for the chunk (restricted by
// affinityProviderID when non-empty), dispatches, and on failure escalates
// that node's back-off and retries exactly once on a node chosen by
// PickExcluding (a different node whenever the pool has one; in a
// single-node pool, the same node). A second failure is returned rather
// than retried further.
func ExecuteChunkWithFailover(ctx context.Context, client *http.Client, pool *Pool, reqs []rpctypes.Request, affinityProviderID string, now func() time.Time) ([]rpctypes.Response, error) {
	node, err := pool.Pick(now(), affinityProviderID)
	if err != nil {
		node, err = pool.PickExcluding(now(), "")
		if err != nil {
			return nil, err
		}
	}

	resps, err := ExecuteChunk(ctx, client, node, reqs)
	if err == nil {
		pool.RecordSuccess(node.URL)
		return resps, nil
	}
	pool.RecordFailure(node.URL, now())

	alt, pickErr := pool.PickExcluding(now(), node.URL)
	if pickErr != nil {
		return nil, fmt.Errorf("providerpool: %w (primary failed: %v)", pickErr, err)
	}
	resps, err2 := ExecuteChunk(ctx, client, alt, reqs)
	if err2 == nil {
		pool.RecordSuccess(alt.URL)
		return resps, nil
	}
	pool.RecordFailure(alt.URL, now())
	return nil, fmt.Errorf("providerpool: both %s and %s failed: %v; %v", nodeLabel(node), nodeLabel(alt), err, err2)
}
