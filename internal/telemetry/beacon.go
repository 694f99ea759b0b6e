package telemetry

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/directdev/directclient/internal/wire"
)

// FlushBeacon best-effort POSTs whatever remains in b as a single NDJSON
// tail line to beaconURL, for the shutdown path (spec §4.8: "any remaining
// telemetry is flushed as a best-effort beacon on Destroy"). Errors are
// swallowed: by the time a beacon fires the caller is already shutting
// down, and nothing downstream is waiting on its result.
func FlushBeacon(beaconURL string, b *Buffer) {
	if beaconURL == "" || b.Empty() {
		return
	}
	tail := b.Drain()

	var buf bytes.Buffer
	nw := wire.NewNDJSONWriter(&buf)
	if err := nw.WriteTail(tail); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, beaconURL, &buf)
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
