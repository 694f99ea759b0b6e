package engine

import (
	"fmt"
	"time"

	"github.com/directdev/directclient/internal/rpctypes"
)

// synthesizeBlockNumber answers eth_blockNumber locally from the cached
// block height rather than round-tripping anywhere: the engine already
// knows the answer the moment it has observed any fresher response. The
// synthesized response inherits the height's own expiry, so a caller that
// caches it downstream ages it out in lockstep with the engine.
func (e *Engine) synthesizeBlockNumber(req rpctypes.Request, now time.Time) rpctypes.Response {
	height, ok := e.blockHeight.Snapshot(now)
	if !ok {
		return rpctypes.Response{ID: req.ID, JSONRPC: "2.0"}
	}
	expiresAt := height.ExpiresAt
	return rpctypes.Response{
		ID:        req.ID,
		JSONRPC:   "2.0",
		Result:    []byte(fmt.Sprintf("%q", height.Value)),
		ExpiresAt: &expiresAt,
	}
}
