package wirestream

import "errors"

// Sentinel errors the reader returns for the distinct ordering/format
// violations spec §4.3 calls out; callers can classify with errors.Is.
var (
	ErrUnknownVersion    = errors.New("wirestream: unknown stream version")
	ErrUnknownKind       = errors.New("wirestream: unknown segment kind")
	ErrHeadNotFirst      = errors.New("wirestream: head segment must be first")
	ErrMultipleHeads     = errors.New("wirestream: more than one head segment")
	ErrMultipleTails     = errors.New("wirestream: more than one tail segment")
	ErrDataAfterTail     = errors.New("wirestream: segment after tail")
	ErrSegmentTooLarge   = errors.New("wirestream: segment exceeds maximum size")
	ErrStreamTooLarge    = errors.New("wirestream: stream exceeds maximum size")
	ErrTruncatedSegment  = errors.New("wirestream: truncated segment")
)
