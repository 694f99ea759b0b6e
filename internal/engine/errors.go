package engine

import (
	"fmt"

	"github.com/directdev/directclient/internal/rpctypes"
)

// ValidationError reports a request that never got as far as a dispatch
// attempt: malformed JSON-RPC envelope, unsupported params shape.
type ValidationError struct{ Reason string }

func (e *ValidationError) Error() string { return fmt.Sprintf("directclient: validation: %s", e.Reason) }

// TransportError reports a failure getting bytes to or from a remote peer
// (aggregator or provider node): connection refused, timeout, non-2xx.
type TransportError struct {
	Peer string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("directclient: transport: %s: %v", e.Peer, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response that arrived but couldn't be decoded as
// valid Wire/NDJSON/JSON-RPC: framing violation, malformed structure.
type ProtocolError struct{ Reason string }

func (e *ProtocolError) Error() string { return fmt.Sprintf("directclient: protocol: %s", e.Reason) }

// SemanticError reports a well-formed JSON-RPC error response from a peer
// (as opposed to a transport/protocol failure getting one at all).
type SemanticError struct {
	Code    int
	Message string
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("directclient: semantic: %d %s", e.Code, e.Message)
}

const noResponseMessage = "no response received from aggregator"

func noResponseError() *SemanticError {
	return &SemanticError{Code: rpctypes.ErrNoResponseCode, Message: noResponseMessage}
}

// noResponseResponse is the synthetic JSON-RPC error response installed for
// every fingerprint a dispatch stream terminated without answering (spec
// §4.6.5): callers receive a well-formed error response with the reserved
// code rather than a transport-level failure, and are never left hanging.
func noResponseResponse() rpctypes.Response {
	return rpctypes.Response{
		JSONRPC: "2.0",
		Error:   &rpctypes.RPCError{Code: rpctypes.ErrNoResponseCode, Message: noResponseMessage},
	}
}
