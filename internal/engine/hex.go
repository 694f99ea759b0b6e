package engine

import "github.com/ethereum/go-ethereum/common/hexutil"

// normalizeHeight canonicalizes a hex block-height string (0x-prefixed, no
// leading zeros) the way go-ethereum's own RPC layer does, rather than
// trusting an aggregator-supplied string verbatim. A malformed height is
// reported rather than silently accepted, since it would otherwise poison
// every block-height-bound cache entry keyed against it.
func normalizeHeight(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	v, err := hexutil.DecodeUint64(raw)
	if err != nil {
		return "", err
	}
	return hexutil.EncodeUint64(v), nil
}
