package wire

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/directdev/directclient/internal/rpctypes"
)

// NDJSON is the developer-mode alternative transport of §6: one JSON object
// per line, {type: "head"|"item"|"tail", value: ...}. Dates are strings on
// the wire (RFC 3339) and are parsed back to timestamps on receipt, unlike
// the binary Wire codec's 7-byte date encoding.
//
// NDJSON has its own trivial newline-delimited framing rather than C3's
// segment-length framing, so it lives here next to the structures it
// serializes rather than in internal/wirestream.

type ndjsonLine struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// NDJSONWriter writes head/item/tail lines to an underlying writer.
type NDJSONWriter struct {
	w io.Writer
}

func NewNDJSONWriter(w io.Writer) *NDJSONWriter { return &NDJSONWriter{w: w} }

func (nw *NDJSONWriter) writeLine(kind string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("wire: ndjson encode %s: %w", kind, err)
	}
	line, err := json.Marshal(ndjsonLine{Type: kind, Value: body})
	if err != nil {
		return err
	}
	_, err = nw.w.Write(append(line, '\n'))
	return err
}

// WriteHead writes the request-side head (session id).
func (nw *NDJSONWriter) WriteHead(sessionID string) error {
	return nw.writeLine("head", ndjsonSessionHead{SessionID: sessionID})
}

// WriteResponseHead writes the response-side head (predictions/block height).
func (nw *NDJSONWriter) WriteResponseHead(head rpctypes.DirectHead) error {
	preds := make([]string, len(head.Predictions))
	for i, fp := range head.Predictions {
		preds[i] = hex.EncodeToString(fp[:])
	}
	return nw.writeLine("head", ndjsonDirectHead{
		Predictions:          preds,
		BlockHeight:          head.BlockHeight,
		BlockHeightExpiresAt: head.BlockHeightExpiresAt,
	})
}

// WriteRequestItem writes one request item.
func (nw *NDJSONWriter) WriteRequestItem(req rpctypes.Request) error {
	return nw.writeLine("item", ndjsonRequest{
		ID:      req.ID,
		JSONRPC: req.JSONRPC,
		Method:  req.Method,
		Params:  json.RawMessage(req.Params),
	})
}

// WriteResponseItem writes one response item.
func (nw *NDJSONWriter) WriteResponseItem(resp rpctypes.Response) error {
	return nw.writeLine("item", ndjsonResponse{
		ID:                            resp.ID,
		JSONRPC:                       resp.JSONRPC,
		Result:                        json.RawMessage(resp.Result),
		Error:                         resp.Error,
		ExpiresWhenBlockHeightChanges: resp.ExpiresWhenBlockHeightChanges,
		ExpiresAt:                     resp.ExpiresAt,
	})
}

// WriteTail writes the client telemetry tail.
func (nw *NDJSONWriter) WriteTail(tail rpctypes.ClientTail) error {
	return nw.writeLine("tail", ndjsonClientTail(tail))
}

type ndjsonSessionHead struct {
	SessionID string `json:"sessionId"`
}

type ndjsonDirectHead struct {
	Predictions           []string   `json:"predictions"`
	BlockHeight           string     `json:"blockHeight,omitempty"`
	BlockHeightExpiresAt  *time.Time `json:"blockHeightExpiresAt,omitempty"`
}

type ndjsonRequest struct {
	ID      any             `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type ndjsonResponse struct {
	ID      any               `json:"id"`
	JSONRPC string            `json:"jsonrpc"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *rpctypes.RPCError `json:"error,omitempty"`

	ExpiresWhenBlockHeightChanges bool       `json:"expiresWhenBlockHeightChanges,omitempty"`
	ExpiresAt                     *time.Time `json:"expiresAt,omitempty"`
}

type ndjsonClientTail rpctypes.ClientTail

// NDJSONReader reads head/item/tail lines from an underlying reader,
// re-entrant the same way the binary stream reader is: Next blocks
// until a full line has arrived, returning io.EOF when the body ends.
type NDJSONReader struct {
	scanner *bufio.Scanner
}

func NewNDJSONReader(r io.Reader) *NDJSONReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &NDJSONReader{scanner: s}
}

// NDJSONSegment is one decoded line, tagged by Kind to match the vocabulary
// C3 uses for the binary stream ("head", "item", "tail").
type NDJSONSegment struct {
	Kind     string
	Head     *rpctypes.DirectHead
	Request  *rpctypes.Request
	Response *rpctypes.Response
	Tail     *rpctypes.ClientTail
}

// Next reads and decodes the next line, or returns io.EOF when the
// underlying reader is exhausted.
func (nr *NDJSONReader) Next() (NDJSONSegment, error) {
	if !nr.scanner.Scan() {
		if err := nr.scanner.Err(); err != nil {
			return NDJSONSegment{}, err
		}
		return NDJSONSegment{}, io.EOF
	}
	raw := bytes.TrimSpace(nr.scanner.Bytes())
	if len(raw) == 0 {
		return nr.Next()
	}
	var line ndjsonLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return NDJSONSegment{}, fmt.Errorf("wire: ndjson malformed line: %w", err)
	}
	switch line.Type {
	case "head":
		var h ndjsonDirectHead
		if err := json.Unmarshal(line.Value, &h); err != nil {
			return NDJSONSegment{}, err
		}
		dh := rpctypes.DirectHead{BlockHeight: h.BlockHeight, BlockHeightExpiresAt: h.BlockHeightExpiresAt}
		dh.Predictions = make([][32]byte, 0, len(h.Predictions))
		for _, hexFP := range h.Predictions {
			var fp [32]byte
			b, err := hex.DecodeString(hexFP)
			if err != nil || len(b) != len(fp) {
				return NDJSONSegment{}, fmt.Errorf("wire: ndjson malformed prediction %q", hexFP)
			}
			copy(fp[:], b)
			dh.Predictions = append(dh.Predictions, fp)
		}
		return NDJSONSegment{Kind: "head", Head: &dh}, nil
	case "item":
		// Item lines can carry either a request (outgoing) or a response
		// (incoming); distinguish by presence of "method".
		var probe struct {
			Method *string `json:"method"`
		}
		_ = json.Unmarshal(line.Value, &probe)
		if probe.Method != nil {
			var req ndjsonRequest
			if err := json.Unmarshal(line.Value, &req); err != nil {
				return NDJSONSegment{}, err
			}
			r := rpctypes.Request{ID: req.ID, JSONRPC: req.JSONRPC, Method: req.Method, Params: []byte(req.Params)}
			return NDJSONSegment{Kind: "item", Request: &r}, nil
		}
		var resp ndjsonResponse
		if err := json.Unmarshal(line.Value, &resp); err != nil {
			return NDJSONSegment{}, err
		}
		r := rpctypes.Response{
			ID: resp.ID, JSONRPC: resp.JSONRPC, Result: []byte(resp.Result), Error: resp.Error,
			ExpiresWhenBlockHeightChanges: resp.ExpiresWhenBlockHeightChanges, ExpiresAt: resp.ExpiresAt,
		}
		return NDJSONSegment{Kind: "item", Response: &r}, nil
	case "tail":
		var t ndjsonClientTail
		if err := json.Unmarshal(line.Value, &t); err != nil {
			return NDJSONSegment{}, err
		}
		ct := rpctypes.ClientTail(t)
		return NDJSONSegment{Kind: "tail", Tail: &ct}, nil
	default:
		return NDJSONSegment{}, fmt.Errorf("wire: ndjson unknown segment type %q", line.Type)
	}
}
