package wire

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/directdev/directclient/internal/rpctypes"
)

// This file is the Structure codec layer (C2 in the design): a Wire<T>
// value bundles a {tag, encode, decode} triple per named structure. Rather
// than one bespoke schema per whitelisted RPC method (eth_blockNumber,
// eth_call, ... — twenty-odd near-identical {method, params, id} shapes),
// a single generic request structure is registered whose method name is
// itself dictionary-compressed by PackString; see DESIGN.md for why this is
// a faithful simplification of "one structure per method" rather than a
// shortcut around it. Responses keep the four distinct shapes the spec
// calls out (success-primitive, success-structured, error, head/tail)
// because those really do have different on-wire layouts.

// Structure tags. init below validates every tag is unique; all are a
// single byte, so the
// "identical tag byte length" requirement from §4.2 holds trivially.
const (
	tagRequest                   byte = 0x01
	tagResponseSuccessPrimitive  byte = 0x02
	tagResponseSuccessStructured byte = 0x03
	tagResponseError             byte = 0x04
	tagHead                      byte = 0x05
	tagTail                      byte = 0x06
	tagOpaque                    byte = 0x7E
)

func init() {
	seen := map[byte]bool{}
	for _, t := range []byte{tagRequest, tagResponseSuccessPrimitive, tagResponseSuccessStructured, tagResponseError, tagHead, tagTail, tagOpaque} {
		if seen[t] {
			panic(fmt.Sprintf("wire: duplicate structure tag %#x", t))
		}
		seen[t] = true
	}
}

// EncodeRequest encodes a request as: tag || id (string-or-number) || method
// (dictionary-aware string) || params (JSON fallback primitive).
//
// Request ids are always erased to the empty string for the purposes of
// hashing elsewhere (internal/fingerprint); EncodeRequest itself preserves
// whatever id the caller supplied, since it's also used to put requests on
// the wire for real (where the aggregator needs the batch-local id).
func EncodeRequest(req rpctypes.Request) []byte {
	out := []byte{tagRequest}
	out = append(out, encodeID(req.ID)...)
	out = append(out, PackString(req.Method)...)
	out = append(out, PackJSON(string(req.Params))...)
	return out
}

// DecodeRequest mirrors EncodeRequest. buf must start at the structure's tag
// byte; cursor is advanced past it.
func DecodeRequest(buf []byte, cursor int) (rpctypes.Request, int) {
	if cursor >= len(buf) || buf[cursor] != tagRequest {
		return rpctypes.Request{}, cursor + 1
	}
	cursor++
	id, cursor := decodeID(buf, cursor)
	method, cursor := UnpackString(buf, cursor)
	params, cursor := UnpackJSON(buf, cursor)
	return rpctypes.Request{ID: id, JSONRPC: "2.0", Method: method, Params: []byte(params)}, cursor
}

func encodeID(id any) []byte {
	switch v := id.(type) {
	case nil:
		return PackStringOrNumber("", false)
	case string:
		return PackStringOrNumber(v, false)
	case float64:
		return PackStringOrNumber(stringifyNumber(jsonNumber(v)), true)
	case int:
		return PackStringOrNumber(stringifyNumber(jsonNumber(float64(v))), true)
	default:
		b, _ := json.Marshal(v)
		return PackStringOrNumber(string(b), false)
	}
}

func jsonNumber(f float64) json.Number {
	return json.Number(trimFloat(f))
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func decodeID(buf []byte, cursor int) (any, int) {
	s, isNumber, cursor := UnpackStringOrNumber(buf, cursor)
	if isNumber {
		return json.Number(s), cursor
	}
	return s, cursor
}

// EncodeResponse picks the success-primitive, success-structured, or error
// structure by inspecting the response's shape, exactly the "mapper
// inspects the value" dispatch of §4.2.
func EncodeResponse(resp rpctypes.Response) []byte {
	if resp.Error != nil {
		out := []byte{tagResponseError}
		out = append(out, encodeID(resp.ID)...)
		out = append(out, PackVarint(uint64(int32ToUint(resp.Error.Code)))...)
		out = append(out, PackString(resp.Error.Message)...)
		out = append(out, PackJSON(string(resp.Error.Data))...)
		return out
	}

	prim := resultToPrimitive(resp.Result)
	tag := tagResponseSuccessPrimitive
	if prim.Kind == primJSON {
		tag = tagResponseSuccessStructured
	}
	out := []byte{tag}
	out = append(out, encodeID(resp.ID)...)
	out = append(out, PackPrimitive(prim)...)
	out = append(out, PackBool(resp.ExpiresWhenBlockHeightChanges)...)
	out = append(out, encodeOptionalTime(resp.ExpiresAt)...)
	return out
}

// DecodeResponse mirrors EncodeResponse.
func DecodeResponse(buf []byte, cursor int) (rpctypes.Response, int) {
	if cursor >= len(buf) {
		return rpctypes.Response{}, cursor
	}
	tag := buf[cursor]
	cursor++
	id, cursor := decodeID(buf, cursor)

	switch tag {
	case tagResponseError:
		code, c := UnpackVarint(buf, cursor)
		msg, c := UnpackString(buf, c)
		data, c := UnpackJSON(buf, c)
		return rpctypes.Response{ID: id, JSONRPC: "2.0", Error: &rpctypes.RPCError{
			Code: int(int32(code)), Message: msg, Data: []byte(data),
		}}, c
	case tagResponseSuccessPrimitive, tagResponseSuccessStructured:
		prim, c := UnpackPrimitive(buf, cursor)
		expires, c := UnpackBool(buf, c)
		at, c := decodeOptionalTime(buf, c)
		return rpctypes.Response{
			ID: id, JSONRPC: "2.0",
			Result:                        primitiveToResult(prim),
			ExpiresWhenBlockHeightChanges: expires,
			ExpiresAt:                     at,
		}, c
	default:
		return rpctypes.Response{}, cursor
	}
}

func int32ToUint(v int) uint32 {
	if v < 0 {
		return uint32(int64(v) + 1<<32)
	}
	return uint32(v)
}

func resultToPrimitive(raw []byte) Primitive {
	if len(raw) == 0 {
		return Primitive{Kind: primNull}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Primitive{Kind: primJSON, JSON: string(raw)}
	}
	switch t := v.(type) {
	case string:
		return Primitive{Kind: primString, Str: t}
	case bool:
		return Primitive{Kind: primBool, Bool: t}
	case float64:
		return Primitive{Kind: primNumber, Number: trimFloat(t)}
	case nil:
		return Primitive{Kind: primNull}
	default:
		return Primitive{Kind: primJSON, JSON: string(raw)}
	}
}

func primitiveToResult(p Primitive) []byte {
	switch p.Kind {
	case primString:
		b, _ := json.Marshal(p.Str)
		return b
	case primBool:
		b, _ := json.Marshal(p.Bool)
		return b
	case primNumber:
		return []byte(p.Number)
	case primJSON:
		return []byte(p.JSON)
	default:
		return []byte("null")
	}
}

func encodeOptionalTime(t *time.Time) []byte {
	if t == nil {
		return []byte{tagNull}
	}
	out := []byte{tagPresent}
	return append(out, PackDate(t.Unix(), int32(t.Nanosecond()/1e6))...)
}

func decodeOptionalTime(buf []byte, cursor int) (*time.Time, int) {
	if cursor >= len(buf) {
		return nil, cursor
	}
	tag := buf[cursor]
	cursor++
	if tag != tagPresent {
		return nil, cursor
	}
	sec, ms, cursor := UnpackDate(buf, cursor)
	t := time.Unix(sec, int64(ms)*int64(time.Millisecond)).UTC()
	return &t, cursor
}

// EncodeSessionHead encodes the client-side stream's head segment: just the
// session id the aggregator should correlate predictive prefetch against
// (spec §4.6). It reuses tagOpaque since it is the one structure with no
// response-side counterpart.
func EncodeSessionHead(sessionID string) []byte {
	out := []byte{tagOpaque}
	return append(out, PackString(sessionID)...)
}

// DecodeSessionHead mirrors EncodeSessionHead.
func DecodeSessionHead(buf []byte, cursor int) (string, int) {
	if cursor >= len(buf) || buf[cursor] != tagOpaque {
		return "", cursor + 1
	}
	cursor++
	return UnpackString(buf, cursor)
}

// EncodeHead encodes the aggregator's head segment payload.
func EncodeHead(head rpctypes.DirectHead) []byte {
	out := []byte{tagHead}
	out = append(out, PackVarint(uint64(len(head.Predictions)))...)
	for _, fp := range head.Predictions {
		out = append(out, fp[:]...)
	}
	if head.BlockHeight == "" {
		out = append(out, tagNull)
	} else {
		out = append(out, tagPresent)
		out = append(out, PackString(head.BlockHeight)...)
	}
	out = append(out, encodeOptionalTime(head.BlockHeightExpiresAt)...)
	return out
}

// DecodeHead mirrors EncodeHead.
func DecodeHead(buf []byte, cursor int) (rpctypes.DirectHead, int) {
	if cursor >= len(buf) || buf[cursor] != tagHead {
		return rpctypes.DirectHead{}, cursor + 1
	}
	cursor++
	n, cursor := UnpackVarint(buf, cursor)
	preds := make([][32]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		if cursor+32 > len(buf) {
			break
		}
		var fp [32]byte
		copy(fp[:], buf[cursor:cursor+32])
		preds = append(preds, fp)
		cursor += 32
	}
	var height string
	if cursor < len(buf) {
		tag := buf[cursor]
		cursor++
		if tag == tagPresent {
			height, cursor = UnpackString(buf, cursor)
		}
	}
	at, cursor := decodeOptionalTime(buf, cursor)
	return rpctypes.DirectHead{Predictions: preds, BlockHeight: height, BlockHeightExpiresAt: at}, cursor
}

// EncodeTail encodes the client telemetry tail segment: three arrays of
// {method, params, observedAt, blockHeight}, one per hit classification.
func EncodeTail(tail rpctypes.ClientTail) []byte {
	out := []byte{tagTail}
	out = append(out, encodeTelemetryRecords(tail.CacheHits)...)
	out = append(out, encodeTelemetryRecords(tail.PrefetchHits)...)
	out = append(out, encodeTelemetryRecords(tail.InflightHits)...)
	return out
}

// DecodeTail is a no-op decoder from the client's perspective (spec §4.5:
// "the tail decoder is a no-op") but is implemented fully so a developer
// tool or the aggregator-side test harness can inspect what was sent.
func DecodeTail(buf []byte, cursor int) (rpctypes.ClientTail, int) {
	if cursor >= len(buf) || buf[cursor] != tagTail {
		return rpctypes.ClientTail{}, cursor + 1
	}
	cursor++
	var tail rpctypes.ClientTail
	tail.CacheHits, cursor = decodeTelemetryRecords(buf, cursor)
	tail.PrefetchHits, cursor = decodeTelemetryRecords(buf, cursor)
	tail.InflightHits, cursor = decodeTelemetryRecords(buf, cursor)
	return tail, cursor
}

func encodeTelemetryRecords(recs []rpctypes.TelemetryRecord) []byte {
	out := PackVarint(uint64(len(recs)))
	for _, r := range recs {
		out = append(out, EncodeRequest(r.Request)...)
		out = append(out, PackDate(r.ObservedAt.Unix(), int32(r.ObservedAt.Nanosecond()/1e6))...)
		out = append(out, PackString(r.BlockHeight)...)
	}
	return out
}

func decodeTelemetryRecords(buf []byte, cursor int) ([]rpctypes.TelemetryRecord, int) {
	n, cursor := UnpackVarint(buf, cursor)
	recs := make([]rpctypes.TelemetryRecord, 0, n)
	for i := uint64(0); i < n; i++ {
		var r rpctypes.TelemetryRecord
		r.Request, cursor = DecodeRequest(buf, cursor)
		var sec int64
		var ms int32
		sec, ms, cursor = UnpackDate(buf, cursor)
		r.ObservedAt = time.Unix(sec, int64(ms)*int64(time.Millisecond)).UTC()
		r.BlockHeight, cursor = UnpackString(buf, cursor)
		recs = append(recs, r)
	}
	return recs, cursor
}

// CanonicalRequestBytes produces the id-independent canonical encoding of a
// request used for fingerprinting (C4): the id field is rewritten to the
// empty string before encoding, so property order and the caller's chosen
// id never affect the result. currentBlockHeight, when non-empty,
// additionally rewrites a trailing explicit height equal to it to the
// symbolic "latest" — the "latest-vs-explicit-height collapse" of spec
// §4.4, which only ever merges a request with its exact current-height
// twin; pass "" to disable it.
func CanonicalRequestBytes(req rpctypes.Request, currentBlockHeight string) []byte {
	params := canonicalizeJSON(req.Params)
	if currentBlockHeight != "" {
		params = canonicalizeBlockParam(params, currentBlockHeight)
	}
	canon := rpctypes.Request{ID: "", JSONRPC: req.JSONRPC, Method: req.Method, Params: params}
	return EncodeRequest(canon)
}

// Hash returns the SHA-256 fingerprint of a request's canonical bytes. If
// precomputedBytes is non-nil (an already-encoded request), it is hashed
// after rewriteRequestID splices the empty-string id into a copy of it,
// rather than re-encoding from scratch, per §4.2's "mutate only the id
// field to a constant" fast path; precomputedBytes itself is not modified.
// Passing nil falls back to a full re-encode.
func Hash(req rpctypes.Request, precomputedBytes []byte) [32]byte {
	if precomputedBytes != nil {
		return sha256.Sum256(rewriteRequestID(precomputedBytes))
	}
	return sha256.Sum256(CanonicalRequestBytes(req, ""))
}

// rewriteRequestID replaces the id field of an already-encoded request with
// the empty-string encoding, without touching the rest of the buffer.
func rewriteRequestID(buf []byte) []byte {
	if len(buf) == 0 || buf[0] != tagRequest {
		return buf
	}
	idStart := 1
	_, _, idEnd := UnpackStringOrNumberWithEnd(buf, idStart)
	empty := PackStringOrNumber("", false)
	out := make([]byte, 0, len(buf)-(idEnd-idStart)+len(empty))
	out = append(out, buf[:idStart]...)
	out = append(out, empty...)
	out = append(out, buf[idEnd:]...)
	return out
}

// UnpackStringOrNumberWithEnd is UnpackStringOrNumber plus the end cursor,
// split out so rewriteRequestID can splice without re-decoding the value.
func UnpackStringOrNumberWithEnd(buf []byte, cursor int) (string, bool, int) {
	return UnpackStringOrNumber(buf, cursor)
}
