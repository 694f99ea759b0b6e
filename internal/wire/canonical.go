package wire

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
)

// canonicalizeJSON recursively sorts object keys and stringifies numbers
// losslessly, so that two JSON values equal up to key order produce
// byte-identical canonical text. Numbers keep their own decimal text, so
// 1.0 and 1 stay distinct.
// CanonicalRequestBytes applies it to the params of every request, since
// all methods share the one generic request structure.
func canonicalizeJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw // not valid JSON; return as-is, matching C1's tolerant decode policy
	}
	out, err := json.Marshal(canonicalValue(v))
	if err != nil {
		return raw
	}
	return out
}

func canonicalValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedObject, 0, len(keys))
		for _, k := range keys {
			out = append(out, orderedField{Key: k, Value: canonicalValue(t[k])})
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = canonicalValue(el)
		}
		return out
	case json.Number:
		return stringifyNumber(t)
	default:
		return v
	}
}

// orderedObject preserves the lexicographic key order produced by
// canonicalValue through json.Marshal, which would otherwise re-sort a
// map[string]any itself (harmlessly here, since we already sorted — this
// just avoids relying on that incidental behavior).
type orderedField struct {
	Key   string
	Value any
}
type orderedObject []orderedField

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// hexBlockTag matches a hex-encoded block number/hash used as a trailing
// block-height parameter (e.g. eth_call, eth_getBalance, eth_getCode all
// take one as their last argument).
var hexBlockTag = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// canonicalizeBlockParam rewrites the trailing block-height element of a
// top-level JSON params array to "latest" when it is an explicit block
// number equal to currentHeight, so that "latest" and its current numeric
// equivalent collapse to one fingerprint (spec §4.4). A height other than
// the current one is left untouched: two distinct historical-block queries
// must keep distinct fingerprints. Only the trailing element is
// considered; a block parameter in any other position (eth_getBlockByNumber
// takes it first) is left as is.
func canonicalizeBlockParam(raw []byte, currentHeight string) []byte {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
		return raw
	}
	last := arr[len(arr)-1]
	var s string
	if err := json.Unmarshal(last, &s); err == nil && hexHeightsEqual(s, currentHeight) {
		rewritten, err := json.Marshal("latest")
		if err != nil {
			return raw
		}
		arr[len(arr)-1] = rewritten
		out, err := json.Marshal(arr)
		if err != nil {
			return raw
		}
		return out
	}
	return raw
}

// hexHeightsEqual reports whether a and b are hex block numbers denoting
// the same height, tolerating leading zeros and case ("0x10" == "0x010").
func hexHeightsEqual(a, b string) bool {
	if !hexBlockTag.MatchString(a) || !hexBlockTag.MatchString(b) {
		return false
	}
	va, errA := strconv.ParseUint(a[2:], 16, 64)
	vb, errB := strconv.ParseUint(b[2:], 16, 64)
	return errA == nil && errB == nil && va == vb
}
