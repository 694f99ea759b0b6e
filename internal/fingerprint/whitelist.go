// Package fingerprint computes the id-independent, order-independent
// identity of a JSON-RPC request used to deduplicate concurrent calls and to
// key the response cache (spec §4.4, C4).
package fingerprint

import "strings"

// suffixWhitelist is the closed set of RPC method suffixes (the segment
// after the last "_") eligible for the aggregator, independent of chain
// prefix ("eth_", "bsc_", ...) — spec §6. Anything outside this set is
// passed straight through to a provider node untouched, since its semantics
// (idempotency, whether a block-height parameter is present) aren't known
// generically.
var suffixWhitelist = map[string]bool{
	"blockNumber":                         true,
	"call":                                true,
	"chainId":                             true,
	"gasPrice":                            true,
	"getBalance":                          true,
	"getBlockByHash":                      true,
	"getBlockByNumber":                    true,
	"getBlockTransactionCountByHash":      true,
	"getBlockTransactionCountByNumber":    true,
	"getCode":                             true,
	"getStorageAt":                        true,
	"getTransactionByBlockHashAndIndex":   true,
	"getTransactionByBlockNumberAndIndex": true,
	"getTransactionByHash":                true,
	"getTransactionCount":                 true,
	"getTransactionReceipt":               true,
	"getUncleByBlockHashAndIndex":         true,
	"getUncleByBlockNumberAndIndex":       true,
	"getUncleCountByBlockHash":            true,
	"getUncleCountByBlockNumber":          true,
	"protocolVersion":                     true,
}

// exactWhitelist is the two methods the suffix rule doesn't cover (spec §6).
var exactWhitelist = map[string]bool{
	"direct_primer": true,
	"net_version":   true,
}

// blockParamSuffixes is the subset of suffixWhitelist that takes a block
// height/tag parameter, eligible for the "latest" fingerprint collapse
// (spec §4.4). The collapse only looks at the trailing parameter, so for
// getBlockByNumber, whose block tag comes first, no collapse happens.
var blockParamSuffixes = map[string]bool{
	"call":                true,
	"getBalance":          true,
	"getTransactionCount": true,
	"getBlockByNumber":    true,
	"getStorageAt":        true,
	"getCode":             true,
}

// Eligible reports whether a request qualifies for batching/caching at all:
// it must be JSON-RPC 2.0 and its method (or method-suffix after the last
// underscore) must be in the whitelist (spec §6).
func Eligible(jsonrpc, method string) bool {
	if jsonrpc != "2.0" {
		return false
	}
	if exactWhitelist[method] {
		return true
	}
	return suffixWhitelist[suffix(method)]
}

// HasBlockParam reports whether method takes a trailing block height/tag
// parameter eligible for the latest-collapse override.
func HasBlockParam(method string) bool {
	return blockParamSuffixes[suffix(method)]
}

// suffix returns the segment of method after its last underscore, or the
// whole method if it has none.
func suffix(method string) string {
	if i := strings.LastIndexByte(method, '_'); i >= 0 {
		return method[i+1:]
	}
	return method
}
