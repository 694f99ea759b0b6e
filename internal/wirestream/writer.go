package wirestream

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/directdev/directclient/internal/wire"
)

// Writer serializes a segment-framed stream: a version byte on first write,
// then one frame per call to WriteHead/WriteItem/WriteTail. It enforces the
// same ordering rules the Reader validates, so a caller that tries to write
// two heads or a segment after the tail fails fast instead of producing a
// stream its own Reader would reject.
type Writer struct {
	w             io.Writer
	wroteVersion  bool
	wroteHead     bool
	wroteItem     bool
	wroteTail     bool
	gzipThreshold int
}

// NewWriter returns a Writer with the default gzip threshold.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, gzipThreshold: DefaultGzipThreshold}
}

// WithGzipThreshold overrides the minimum payload size eligible for
// compression.
func (wr *Writer) WithGzipThreshold(n int) *Writer {
	wr.gzipThreshold = n
	return wr
}

func (wr *Writer) writeVersionOnce() error {
	if wr.wroteVersion {
		return nil
	}
	wr.wroteVersion = true
	_, err := wr.w.Write([]byte{Version})
	return err
}

// WriteHead writes the head segment. Must be called at most once, and before
// any item or the tail.
func (wr *Writer) WriteHead(payload []byte) error {
	if wr.wroteHead {
		return ErrMultipleHeads
	}
	if wr.wroteTail {
		return ErrDataAfterTail
	}
	if wr.wroteItem {
		return ErrHeadNotFirst
	}
	wr.wroteHead = true
	return wr.writeSegment(KindHead, payload)
}

// WriteItem writes one item segment.
func (wr *Writer) WriteItem(payload []byte) error {
	if wr.wroteTail {
		return ErrDataAfterTail
	}
	wr.wroteItem = true
	return wr.writeSegment(KindItem, payload)
}

// WriteTail writes the tail segment. Must be called at most once and last.
func (wr *Writer) WriteTail(payload []byte) error {
	if wr.wroteTail {
		return ErrMultipleTails
	}
	wr.wroteTail = true
	return wr.writeSegment(KindTail, payload)
}

func (wr *Writer) writeSegment(kind byte, payload []byte) error {
	if err := wr.writeVersionOnce(); err != nil {
		return err
	}
	if len(payload) > DefaultMaxSegmentBytes {
		return fmt.Errorf("%w: %d bytes", ErrSegmentTooLarge, len(payload))
	}

	flag := byte(0)
	body := payload
	if len(payload) >= wr.gzipThreshold {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(payload); err != nil {
			return err
		}
		if err := gz.Close(); err != nil {
			return err
		}
		if buf.Len() < len(payload) {
			flag |= flagGzip
			body = buf.Bytes()
		}
	}

	frame := []byte{kind, flag}
	frame = append(frame, wire.PackVarint(uint64(len(body)))...)
	frame = append(frame, body...)
	_, err := wr.w.Write(frame)
	return err
}
