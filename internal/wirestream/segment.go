// Package wirestream implements the segment-framed envelope the binary Wire
// protocol is carried in (C3 in the design): a one-byte version, followed by
// a sequence of length-prefixed segments — at most one head, any number of
// items, at most one tail (nothing may follow it) — each optionally
// gzip-compressed.
package wirestream

import (
	"fmt"

	"github.com/directdev/directclient/internal/wire"
)

// Version is the stream envelope version this package writes and the only
// one its reader accepts. It is wire.Version, so a codec or dictionary
// change that bumps that constant also changes the stream's version byte.
const Version byte = wire.Version

// Segment kinds.
const (
	KindHead byte = 1
	KindItem byte = 2
	KindTail byte = 3
)

// flag bits in a segment's second byte.
const flagGzip byte = 0x01

// DefaultGzipThreshold is the minimum payload size, in bytes, below which a
// segment is never compressed: gzip's own framing overhead outweighs the
// savings on small payloads (spec §4.3, "only when it would actually shrink
// the segment").
const DefaultGzipThreshold = 256

// DefaultMaxSegmentBytes bounds one segment's payload length as framed on
// the wire; the Reader checks it before any gunzip, so the decompressed
// size of a gzip segment is not bounded by it.
const DefaultMaxSegmentBytes = 16 << 20 // 16 MiB

// DefaultMaxStreamBytes bounds the total framed payload bytes a single
// stream may deliver, guarding against a runaway or hostile peer; like the
// per-segment cap, it counts bytes before decompression.
const DefaultMaxStreamBytes = 256 << 20 // 256 MiB

// Segment is one decoded frame.
type Segment struct {
	Kind    byte
	Payload []byte
}

func (s Segment) String() string {
	return fmt.Sprintf("Segment{kind=%d, len=%d}", s.Kind, len(s.Payload))
}
