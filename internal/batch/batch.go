// Package batch implements the Batch object (C5): the set of requests
// accumulated for one dispatch window, and the half-duplex streamed
// exchange with the aggregator.
package batch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/directdev/directclient/internal/rpctypes"
	"github.com/directdev/directclient/internal/wire"
	"github.com/directdev/directclient/internal/wirestream"
)

// Batch accumulates requests for one dispatch window. It is safe for
// concurrent use: Push/Size/Requests may be called from any goroutine while
// the engine's batch-window timer is pending.
type Batch struct {
	SessionID    string
	EndpointURL  string
	PreferNDJSON bool

	mu       sync.Mutex
	requests []rpctypes.Request
	sealed   bool
}

// New returns an empty batch targeting endpointURL under sessionID.
func New(sessionID, endpointURL string, preferNDJSON bool) *Batch {
	return &Batch{SessionID: sessionID, EndpointURL: endpointURL, PreferNDJSON: preferNDJSON}
}

// Push appends req to the batch and returns its batch-local id: the 1-based
// index of this request among every request pushed so far (spec §3: "each
// request is assigned a batch-local id equal to its 1-based index in the
// batch"). The aggregator's response id echoes this local id, not the
// caller's own req.ID — see EncodeRequest's use of it in Dispatch.
//
// Push returns 0 once dispatch has begun: a sealed batch's body stream is
// already committed, so a late request must go into the next batch instead.
func (b *Batch) Push(req rpctypes.Request) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return 0
	}
	b.requests = append(b.requests, req)
	return len(b.requests)
}

// seal marks the batch dispatched and returns the final request snapshot.
func (b *Batch) seal() []rpctypes.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	out := make([]rpctypes.Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Size reports how many requests are currently queued.
func (b *Batch) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Requests returns a snapshot of the queued requests; mutating the returned
// slice does not affect the batch.
func (b *Batch) Requests() []rpctypes.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]rpctypes.Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Result is the outcome of dispatching a batch: either a live Stream the
// caller can read head/item/tail segments from, or a terminal error meaning
// the aggregator could not be reached at all (the engine's back-off and
// provider-fallback path takes over from there).
type Result struct {
	Stream *Stream
	Err    error
}

// Ok wraps a successfully established stream.
func Ok(s *Stream) Result { return Result{Stream: s} }

// ErrResult wraps a dispatch failure.
func ErrResult(err error) Result { return Result{Err: err} }

// Stream is the decoded, still-arriving response to a dispatched batch.
// Segments is closed once the tail has been delivered or the underlying
// connection fails; a failure mid-stream is reported on the last value
// read before the channel closes having Err set.
type Stream struct {
	Segments chan StreamSegment
	body     io.Closer
}

// StreamSegment is one decoded unit from the aggregator, tagged by exactly
// one populated field, mirroring wire's NDJSONSegment vocabulary so engine
// code can treat the binary and NDJSON paths identically.
type StreamSegment struct {
	Head     *rpctypes.DirectHead
	Response *rpctypes.Response
	Tail     *rpctypes.ClientTail
	Err      error
}

// Close releases the underlying connection; safe to call multiple times.
func (s *Stream) Close() error {
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}

// Dispatch sends the batch to the aggregator over a half-duplex streamed
// HTTP body (version || head || items || tail, or its NDJSON equivalent)
// and returns a Stream the caller drains for the aggregator's reply. The
// request body is written on a pipe in a background goroutine so the
// response can start streaming back before the request finishes sending,
// mirroring the predictive-prefetch-absorption flow of spec §4.6: items the
// aggregator can answer immediately are often known before the client has
// finished sending the rest of the batch.
func Dispatch(ctx context.Context, client *http.Client, b *Batch, tail rpctypes.ClientTail) Result {
	reqs := b.seal()

	pr, pw := io.Pipe()
	go func() {
		var err error
		if b.PreferNDJSON {
			err = writeNDJSONBody(pw, b.SessionID, reqs, tail)
		} else {
			err = writeWireBody(pw, b.SessionID, reqs, tail)
		}
		pw.CloseWithError(err)
	}()

	contentType := "application/octet-stream"
	if b.PreferNDJSON {
		contentType = "application/x-ndjson"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.EndpointURL, pr)
	if err != nil {
		return ErrResult(err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("X-Session-Id", b.SessionID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return ErrResult(err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return ErrResult(fmt.Errorf("batch: aggregator responded %d", resp.StatusCode))
	}

	stream := &Stream{Segments: make(chan StreamSegment, 8), body: resp.Body}
	if b.PreferNDJSON {
		go pumpNDJSON(resp.Body, stream)
	} else {
		go pumpWire(resp.Body, stream)
	}
	return Ok(stream)
}

// withLocalID returns a copy of r with its id rewritten to its 1-based
// batch-local position, the id the aggregator's response will echo back
// (spec §3, §4.5). The caller's own req.ID is never put on this wire: the
// engine re-maps batch-local id back to the caller's id once the response
// arrives (see the engine's pendingFP list and dispatch.go's localIndex).
func withLocalID(r rpctypes.Request, localID int) rpctypes.Request {
	r.ID = localID
	return r
}

func writeWireBody(w io.Writer, sessionID string, reqs []rpctypes.Request, tail rpctypes.ClientTail) error {
	sw := wirestream.NewWriter(w)
	if err := sw.WriteHead(wire.EncodeSessionHead(sessionID)); err != nil {
		return err
	}
	for i, r := range reqs {
		if err := sw.WriteItem(wire.EncodeRequest(withLocalID(r, i+1))); err != nil {
			return err
		}
	}
	return sw.WriteTail(wire.EncodeTail(tail))
}

func writeNDJSONBody(w io.Writer, sessionID string, reqs []rpctypes.Request, tail rpctypes.ClientTail) error {
	nw := wire.NewNDJSONWriter(w)
	if err := nw.WriteHead(sessionID); err != nil {
		return err
	}
	for i, r := range reqs {
		if err := nw.WriteRequestItem(withLocalID(r, i+1)); err != nil {
			return err
		}
	}
	return nw.WriteTail(tail)
}

func pumpWire(body io.ReadCloser, stream *Stream) {
	defer close(stream.Segments)
	r := wirestream.NewReader(body)
	for {
		seg, err := r.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			stream.Segments <- StreamSegment{Err: err}
			return
		}
		switch seg.Kind {
		case wirestream.KindHead:
			head, _ := wire.DecodeHead(seg.Payload, 0)
			stream.Segments <- StreamSegment{Head: &head}
		case wirestream.KindItem:
			resp, _ := wire.DecodeResponse(seg.Payload, 0)
			stream.Segments <- StreamSegment{Response: &resp}
		case wirestream.KindTail:
			tail, _ := wire.DecodeTail(seg.Payload, 0)
			stream.Segments <- StreamSegment{Tail: &tail}
		}
	}
}

func pumpNDJSON(body io.ReadCloser, stream *Stream) {
	defer close(stream.Segments)
	r := wire.NewNDJSONReader(body)
	for {
		seg, err := r.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			stream.Segments <- StreamSegment{Err: err}
			return
		}
		switch seg.Kind {
		case "head":
			stream.Segments <- StreamSegment{Head: seg.Head}
		case "item":
			stream.Segments <- StreamSegment{Response: seg.Response}
		case "tail":
			stream.Segments <- StreamSegment{Tail: seg.Tail}
		}
	}
}
