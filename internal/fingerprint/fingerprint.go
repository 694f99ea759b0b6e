package fingerprint

import (
	"encoding/hex"

	"github.com/directdev/directclient/internal/rpctypes"
	"github.com/directdev/directclient/internal/wire"
)

// Fingerprint is the 32-byte SHA-256 identity of a request, stable across
// request id and JSON key order (spec I2), and distinct for distinct
// method/params (spec I3).
type Fingerprint [32]byte

// String renders the fingerprint as lowercase hex.
func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// Of computes the fingerprint of req. When currentBlockHeight is non-empty
// and the method takes a trailing block-height parameter, an explicit
// height equal to currentBlockHeight collapses to the same fingerprint as
// "latest" (spec §4.4); any other explicit height keeps its own
// fingerprint. Pass "" to disable the collapse (e.g. when the engine has
// no current block height cached yet).
func Of(req rpctypes.Request, currentBlockHeight string) Fingerprint {
	height := ""
	if HasBlockParam(req.Method) {
		height = currentBlockHeight
	}
	return wire.Hash(req, wire.CanonicalRequestBytes(req, height))
}
