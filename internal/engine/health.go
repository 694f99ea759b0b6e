package engine

import (
	"context"

	"github.com/directdev/directclient/internal/providerpool"
)

// ProbeProviders directly queries eth_blockNumber against every configured
// provider node concurrently, bypassing the aggregator, the response
// cache, and the batch window entirely. It exists for operator-facing
// introspection (the CLI's `watch` dashboard) rather than the dispatch
// path, so it never touches the inflight map or telemetry buffers.
func (e *Engine) ProbeProviders(ctx context.Context) []providerpool.NodeHealth {
	return e.providers.ProbeAll(ctx, e.client)
}
