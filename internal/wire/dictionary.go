// Package wire implements the Wire binary codec: the pack/unpack primitives
// (varints, strings, dates, primitives) and the schema-driven structure
// codecs built on top of them.
//
// The dictionary below is part of the wire format version. Adding, removing,
// or reordering entries changes the bytes a given value encodes to, so any
// change here must be accompanied by a version bump in Version.
package wire

// Version is the single version byte written at the start of every Wire
// stream (see internal/wirestream). Bump this whenever the dictionary
// below, or any structure codec's tag/shape, changes in an incompatible way.
const Version byte = 1

// dictionary holds frequently occurring strings assigned single-byte codes.
// Index 0 maps to dictionary code 0x80, index 1 to 0x81, and so on — see
// PackString/UnpackString in primitives.go for the 0x80 split between
// varint-length strings and dictionary-coded strings.
//
// Entries are grouped by the kind of value they save bytes on: block-height
// tags, JSON-RPC envelope constants, and canned error messages seen often
// enough in practice to be worth a dedicated byte.
var dictionary = []string{
	// Block-height tags (eth_call / eth_getBalance / ... default block param)
	"latest",
	"finalized",
	"pending",
	"safe",
	"earliest",

	// JSON-RPC envelope constants
	"2.0",
	"jsonrpc",
	"result",
	"error",
	"id",
	"method",
	"params",

	// Whitelisted method names (see fingerprint/whitelist.go for the full list);
	// only the hottest handful earn a dictionary slot, the rest fall back to
	// varint-length string encoding.
	"eth_blockNumber",
	"eth_call",
	"eth_chainId",
	"eth_gasPrice",
	"eth_getBalance",
	"eth_getTransactionReceipt",
	"eth_getTransactionByHash",
	"eth_getTransactionCount",
	"net_version",
	"direct_primer",

	// Canned error messages
	"no response received from aggregator",
	"internal error",
	"method not found",
	"",
}

// dictionaryCode is the high bit marking a byte as a dictionary index rather
// than the first byte of a varint(len) string header. This gives 128
// reserved dictionary slots distinct from the 7-bit-safe varint byte range.
const dictionaryCode = 0x80

var dictionaryIndex = func() map[string]byte {
	m := make(map[string]byte, len(dictionary))
	for i, s := range dictionary {
		if i >= 0x80 {
			panic("wire: dictionary exceeds 128 entries")
		}
		m[s] = byte(i)
	}
	return m
}()
